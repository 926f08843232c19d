package parser

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/calder/gantry/internal/models"
)

// YAMLParser parses workflow definitions in YAML format
type YAMLParser struct{}

// NewYAMLParser creates a new YAML workflow parser
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// stringOrList accepts either a YAML scalar or a sequence of scalars, so
// both "on: push" and "on: [push, pull_request]" decode the same way.
type stringOrList []string

func (s *stringOrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("line %d: expected scalar or sequence", value.Line)
	}
}

// guardYAML mirrors the guard step block on disk.
type guardYAML struct {
	Marker  string   `yaml:"marker"`
	Paths   []string `yaml:"paths"`
	Exclude []string `yaml:"exclude"`
}

// stepYAML mirrors a single step entry on disk.
type stepYAML struct {
	Name            string            `yaml:"name"`
	Run             string            `yaml:"run"`
	Guard           *guardYAML        `yaml:"guard"`
	Env             map[string]string `yaml:"env"`
	WorkingDir      string            `yaml:"working-directory"`
	Shell           string            `yaml:"shell"`
	ContinueOnError bool              `yaml:"continue-on-error"`
	TimeoutMinutes  int               `yaml:"timeout-minutes"`
}

// jobYAML mirrors a job body on disk.
type jobYAML struct {
	Name       string            `yaml:"name"`
	Needs      stringOrList      `yaml:"needs"`
	Env        map[string]string `yaml:"env"`
	WorkingDir string            `yaml:"working-directory"`
	Strategy   models.Strategy   `yaml:"strategy"`
	Steps      []stepYAML        `yaml:"steps"`
}

// workflowYAML mirrors the top-level workflow document. Jobs are kept as a
// raw node so declaration order survives decoding (Go maps would lose it).
type workflowYAML struct {
	Name string            `yaml:"name"`
	On   stringOrList      `yaml:"on"`
	Env  map[string]string `yaml:"env"`
	Jobs yaml.Node         `yaml:"jobs"`
}

// Parse reads a YAML workflow definition and converts it to a Workflow.
// Parse errors carry line context from the YAML decoder where available.
func (p *YAMLParser) Parse(r io.Reader) (*models.Workflow, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if len(content) == 0 {
		return nil, errors.New("empty workflow file")
	}

	var raw workflowYAML
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	workflow := &models.Workflow{
		Name: raw.Name,
		On:   raw.On,
		Env:  raw.Env,
	}

	if raw.Jobs.Kind == 0 {
		return nil, errors.New("workflow has no jobs")
	}
	if raw.Jobs.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: jobs must be a mapping", raw.Jobs.Line)
	}

	// Mapping nodes store key/value pairs as alternating content entries.
	for i := 0; i+1 < len(raw.Jobs.Content); i += 2 {
		keyNode := raw.Jobs.Content[i]
		bodyNode := raw.Jobs.Content[i+1]

		var body jobYAML
		if err := bodyNode.Decode(&body); err != nil {
			return nil, fmt.Errorf("job %s: %w", keyNode.Value, err)
		}

		job, err := convertJob(keyNode.Value, body)
		if err != nil {
			return nil, err
		}
		workflow.Jobs = append(workflow.Jobs, job)
	}

	return workflow, nil
}

func convertJob(id string, body jobYAML) (models.Job, error) {
	job := models.Job{
		ID:         id,
		Name:       body.Name,
		Needs:      body.Needs,
		Env:        body.Env,
		WorkingDir: body.WorkingDir,
		Strategy:   body.Strategy,
	}

	for i, s := range body.Steps {
		step := models.Step{
			Name:            s.Name,
			Run:             s.Run,
			Env:             s.Env,
			WorkingDir:      s.WorkingDir,
			Shell:           s.Shell,
			ContinueOnError: s.ContinueOnError,
			TimeoutMinutes:  s.TimeoutMinutes,
		}
		if s.Guard != nil {
			step.Guard = &models.GuardSpec{
				Marker:  s.Guard.Marker,
				Paths:   s.Guard.Paths,
				Exclude: s.Guard.Exclude,
			}
		}
		if err := step.Validate(); err != nil {
			return models.Job{}, fmt.Errorf("job %s step %d: %w", id, i+1, err)
		}
		job.Steps = append(job.Steps, step)
	}

	return job, nil
}
