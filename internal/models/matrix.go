package models

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MatrixAxis is one matrix dimension: a key and its candidate values.
// Axes keep declaration order so expansion is deterministic.
type MatrixAxis struct {
	Key    string
	Values []string
}

// Strategy controls matrix fan-out for a job.
type Strategy struct {
	Axes        []MatrixAxis // Matrix axes in declaration order (empty = no matrix)
	MaxParallel int          // Max concurrent matrix instances (0 = unbounded)
	FailFast    bool         // Cancel sibling instances on first failure
}

// strategyYAML mirrors the on-disk strategy block. FailFast is a pointer so
// an absent key can default to true, matching the hosted-CI convention.
type strategyYAML struct {
	Matrix      yaml.Node `yaml:"matrix"`
	MaxParallel int       `yaml:"max-parallel"`
	FailFast    *bool     `yaml:"fail-fast"`
}

// UnmarshalYAML decodes a strategy block. The matrix mapping is walked as a
// yaml.Node rather than a map so axis declaration order survives decoding.
func (s *Strategy) UnmarshalYAML(value *yaml.Node) error {
	var raw strategyYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}

	s.MaxParallel = raw.MaxParallel
	s.FailFast = true
	if raw.FailFast != nil {
		s.FailFast = *raw.FailFast
	}

	if raw.Matrix.Kind == 0 {
		return nil // no matrix block
	}
	if raw.Matrix.Kind != yaml.MappingNode {
		return errors.New("strategy matrix must be a mapping")
	}

	// Mapping nodes store key/value pairs as alternating content entries.
	for i := 0; i+1 < len(raw.Matrix.Content); i += 2 {
		keyNode := raw.Matrix.Content[i]
		valNode := raw.Matrix.Content[i+1]

		if valNode.Kind != yaml.SequenceNode {
			return fmt.Errorf("matrix axis %q must be a sequence", keyNode.Value)
		}

		axis := MatrixAxis{Key: keyNode.Value}
		for _, item := range valNode.Content {
			// Scalars of any YAML type (string, int, float) normalize to
			// their literal text, so [3.9, "3.10"] behaves as expected.
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("matrix axis %q contains a non-scalar value", keyNode.Value)
			}
			axis.Values = append(axis.Values, item.Value)
		}
		s.Axes = append(s.Axes, axis)
	}

	return nil
}

// Validate checks the strategy for empty axes and invalid limits.
func (s *Strategy) Validate() error {
	if s.MaxParallel < 0 {
		return errors.New("max-parallel cannot be negative")
	}
	seen := make(map[string]bool, len(s.Axes))
	for _, axis := range s.Axes {
		if axis.Key == "" {
			return errors.New("matrix axis key cannot be empty")
		}
		if seen[axis.Key] {
			return fmt.Errorf("duplicate matrix axis %q", axis.Key)
		}
		seen[axis.Key] = true
		if len(axis.Values) == 0 {
			return fmt.Errorf("matrix axis %q has no values", axis.Key)
		}
	}
	return nil
}

// MatrixInstance is one concrete assignment of matrix keys to values.
type MatrixInstance struct {
	Keys   []string          // Axis keys in declaration order
	Values map[string]string // Axis key -> assigned value
}

// Suffix returns the "(v1, v2)" display suffix for the instance, or an
// empty string for the empty instance of a matrix-less job.
func (m MatrixInstance) Suffix() string {
	if len(m.Keys) == 0 {
		return ""
	}
	vals := make([]string, 0, len(m.Keys))
	for _, k := range m.Keys {
		vals = append(vals, m.Values[k])
	}
	return "(" + strings.Join(vals, ", ") + ")"
}

// InstanceName returns the display name for a job's matrix instance,
// e.g. "test (3.9)".
func InstanceName(job *Job, instance MatrixInstance) string {
	suffix := instance.Suffix()
	if suffix == "" {
		return job.DisplayName()
	}
	return job.DisplayName() + " " + suffix
}

// Expand computes the cartesian product of the matrix axes in declaration
// order. An empty matrix yields exactly one empty instance, so every job
// runs at least once.
func (s *Strategy) Expand() []MatrixInstance {
	if len(s.Axes) == 0 {
		return []MatrixInstance{{}}
	}

	keys := make([]string, len(s.Axes))
	for i, axis := range s.Axes {
		keys[i] = axis.Key
	}

	instances := []MatrixInstance{{Keys: keys, Values: map[string]string{}}}
	for _, axis := range s.Axes {
		next := make([]MatrixInstance, 0, len(instances)*len(axis.Values))
		for _, base := range instances {
			for _, value := range axis.Values {
				values := make(map[string]string, len(base.Values)+1)
				for k, v := range base.Values {
					values[k] = v
				}
				values[axis.Key] = value
				next = append(next, MatrixInstance{Keys: keys, Values: values})
			}
		}
		instances = next
	}

	return instances
}
