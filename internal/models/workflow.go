package models

import (
	"errors"
	"fmt"
)

// Trigger event names accepted in a workflow's "on" list.
const (
	EventPush             = "push"
	EventPullRequest      = "pull_request"
	EventWorkflowDispatch = "workflow_dispatch"
	EventSchedule         = "schedule"
)

// validEvents is the set of trigger events a workflow may declare.
var validEvents = map[string]bool{
	EventPush:             true,
	EventPullRequest:      true,
	EventWorkflowDispatch: true,
	EventSchedule:         true,
}

// Workflow represents a parsed workflow definition
type Workflow struct {
	Name     string            // Workflow name
	On       []string          // Trigger events (push, pull_request, ...)
	Env      map[string]string // Workflow-level environment variables
	Jobs     []Job             // Jobs in declaration order
	FilePath string            // Original file path (absolute, for logs and locks)
}

// Job represents a single job in a workflow
type Job struct {
	ID         string            // Job identifier (YAML key)
	Name       string            // Display name (defaults to ID)
	Needs      []string          // Job IDs this job depends on
	Env        map[string]string // Job-level environment variables
	WorkingDir string            // Working directory for all steps (optional)
	Strategy   Strategy          // Matrix strategy
	Steps      []Step            // Ordered steps
}

// DisplayName returns the job's name, falling back to its ID.
func (j *Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// Step represents a single step within a job.
// Exactly one of Run or Guard must be set.
type Step struct {
	Name            string            // Step name (optional)
	Run             string            // Shell command to execute
	Guard           *GuardSpec        // Built-in forbidden-marker scan
	Env             map[string]string // Step-level environment variables
	WorkingDir      string            // Working directory override (optional)
	Shell           string            // Shell to use (default "sh")
	ContinueOnError bool              // Don't abort the job when this step fails
	TimeoutMinutes  int               // Per-step timeout (0 = none)
}

// GuardSpec configures the built-in marker scan step. The step fails when
// any scanned file contains the marker text.
type GuardSpec struct {
	Marker  string   // Literal text to search for
	Paths   []string // Glob patterns to include (empty = everything)
	Exclude []string // Glob patterns to exclude
}

// DisplayName returns the step's name, falling back to a description of
// what it does.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Guard != nil {
		return fmt.Sprintf("guard: %q", s.Guard.Marker)
	}
	return s.Run
}

// Validate checks if the step is well formed
func (s *Step) Validate() error {
	if s.Run == "" && s.Guard == nil {
		return errors.New("step must have either run or guard")
	}
	if s.Run != "" && s.Guard != nil {
		return errors.New("step cannot have both run and guard")
	}
	if s.Guard != nil && s.Guard.Marker == "" {
		return errors.New("guard step requires a marker")
	}
	if s.TimeoutMinutes < 0 {
		return errors.New("step timeout cannot be negative")
	}
	return nil
}

// Validate checks if the job has all required fields and well-formed steps
func (j *Job) Validate() error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if len(j.Steps) == 0 {
		return fmt.Errorf("job %s has no steps", j.ID)
	}
	for i := range j.Steps {
		if err := j.Steps[i].Validate(); err != nil {
			return fmt.Errorf("job %s step %d: %w", j.ID, i+1, err)
		}
	}
	if err := j.Strategy.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	return nil
}

// Validate checks structural validity of the whole workflow: required
// fields, known trigger events, resolvable needs references, and absence
// of dependency cycles.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(w.Jobs) == 0 {
		return errors.New("workflow has no jobs")
	}
	for _, event := range w.On {
		if !validEvents[event] {
			return fmt.Errorf("unknown trigger event %q", event)
		}
	}

	jobIDs := make(map[string]bool, len(w.Jobs))
	for i := range w.Jobs {
		job := &w.Jobs[i]
		if jobIDs[job.ID] {
			return fmt.Errorf("duplicate job id %q", job.ID)
		}
		jobIDs[job.ID] = true
		if err := job.Validate(); err != nil {
			return err
		}
	}

	for i := range w.Jobs {
		for _, dep := range w.Jobs[i].Needs {
			if !jobIDs[dep] {
				return fmt.Errorf("job %s needs unknown job %q", w.Jobs[i].ID, dep)
			}
		}
	}

	if HasCyclicNeeds(w.Jobs) {
		return errors.New("cyclic needs dependency between jobs")
	}

	return nil
}

// TriggersOn returns true if the workflow declares the given trigger event.
// A workflow with an empty "on" list triggers on nothing.
func (w *Workflow) TriggersOn(event string) bool {
	for _, e := range w.On {
		if e == event {
			return true
		}
	}
	return false
}

// JobByID returns the job with the given ID, or nil if absent.
func (w *Workflow) JobByID(id string) *Job {
	for i := range w.Jobs {
		if w.Jobs[i].ID == id {
			return &w.Jobs[i]
		}
	}
	return nil
}

// HasCyclicNeeds detects circular dependencies between jobs
// using DFS with color marking (white=unvisited, gray=visiting, black=visited)
func HasCyclicNeeds(jobs []Job) bool {
	// Build adjacency list: job ID -> list of dependent job IDs
	graph := make(map[string][]string)
	jobMap := make(map[string]bool)

	for _, job := range jobs {
		jobMap[job.ID] = true
		graph[job.ID] = []string{}
	}

	// Build edges: if job A needs B, then B -> A
	for _, job := range jobs {
		for _, dep := range job.Needs {
			// Self-reference is a cycle
			if dep == job.ID {
				return true
			}
			// Only add edge if the dependency exists
			if jobMap[dep] {
				graph[dep] = append(graph[dep], job.ID)
			}
		}
	}

	const (
		white = 0 // not visited
		gray  = 1 // currently visiting
		black = 2 // visited
	)

	colors := make(map[string]int)
	for id := range jobMap {
		colors[id] = white
	}

	// DFS to detect back edges (cycles)
	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray

		for _, neighbor := range graph[node] {
			if colors[neighbor] == gray {
				return true
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}

		colors[node] = black
		return false
	}

	for id := range jobMap {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}

	return false
}
