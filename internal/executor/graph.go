package executor

import (
	"fmt"

	"github.com/calder/gantry/internal/models"
)

// JobGraph computes the execution order for a workflow's jobs from their
// needs declarations: jobs are grouped into levels, levels run
// sequentially, jobs within a level run concurrently.
type JobGraph struct {
	levels [][]string          // Job IDs grouped by dependency depth
	deps   map[string][]string // Job ID -> direct needs
}

// BuildJobGraph constructs the level ordering for the given jobs using
// Kahn's algorithm. Returns an error if needs references are unresolvable
// or cyclic (Validate catches these earlier; this is the executor's own
// safety net).
func BuildJobGraph(jobs []models.Job) (*JobGraph, error) {
	ids := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		ids[job.ID] = true
	}

	indegree := make(map[string]int, len(jobs))
	dependents := make(map[string][]string)
	deps := make(map[string][]string, len(jobs))

	for _, job := range jobs {
		indegree[job.ID] = 0
		deps[job.ID] = job.Needs
	}
	for _, job := range jobs {
		for _, dep := range job.Needs {
			if !ids[dep] {
				return nil, fmt.Errorf("job %s needs unknown job %q", job.ID, dep)
			}
			indegree[job.ID]++
			dependents[dep] = append(dependents[dep], job.ID)
		}
	}

	// Peel off zero-indegree jobs level by level, preserving workflow
	// declaration order within each level.
	var levels [][]string
	resolved := 0
	remaining := make(map[string]int, len(indegree))
	for id, d := range indegree {
		remaining[id] = d
	}

	for resolved < len(jobs) {
		var level []string
		for _, job := range jobs {
			if remaining[job.ID] == 0 {
				level = append(level, job.ID)
				remaining[job.ID] = -1 // claimed
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("cyclic needs dependency between jobs")
		}
		for _, id := range level {
			for _, dependent := range dependents[id] {
				remaining[dependent]--
			}
		}
		resolved += len(level)
		levels = append(levels, level)
	}

	return &JobGraph{levels: levels, deps: deps}, nil
}

// Levels returns the job IDs grouped by execution level.
func (g *JobGraph) Levels() [][]string {
	return g.levels
}

// Needs returns the direct dependencies of a job.
func (g *JobGraph) Needs(id string) []string {
	return g.deps[id]
}

// BlockedBy returns the first dependency of id whose jobs all failed,
// canceled, or were skipped, according to the statuses map (job ID ->
// aggregate success). Returns "" when nothing blocks the job.
func (g *JobGraph) BlockedBy(id string, succeeded map[string]bool) string {
	for _, dep := range g.deps[id] {
		if !succeeded[dep] {
			return dep
		}
	}
	return ""
}
