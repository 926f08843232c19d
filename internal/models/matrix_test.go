package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStrategyUnmarshalYAML(t *testing.T) {
	src := `
matrix:
  python-version: [3.9, "3.10", 3.11]
  os: [linux]
max-parallel: 2
fail-fast: false
`
	var s Strategy
	require.NoError(t, yaml.Unmarshal([]byte(src), &s))

	require.Len(t, s.Axes, 2)
	assert.Equal(t, "python-version", s.Axes[0].Key)
	assert.Equal(t, []string{"3.9", "3.10", "3.11"}, s.Axes[0].Values)
	assert.Equal(t, "os", s.Axes[1].Key)
	assert.Equal(t, 2, s.MaxParallel)
	assert.False(t, s.FailFast)
}

func TestStrategyUnmarshalYAMLDefaults(t *testing.T) {
	var s Strategy
	require.NoError(t, yaml.Unmarshal([]byte(`matrix: {go: ["1.22"]}`), &s))

	assert.True(t, s.FailFast, "fail-fast should default to true")
	assert.Equal(t, 0, s.MaxParallel)
}

func TestStrategyUnmarshalYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"matrix not a mapping", `matrix: [a, b]`},
		{"axis not a sequence", "matrix:\n  version: 3.9"},
		{"non-scalar axis value", "matrix:\n  version:\n    - {a: 1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Strategy
			assert.Error(t, yaml.Unmarshal([]byte(tt.src), &s))
		})
	}
}

func TestStrategyExpand(t *testing.T) {
	s := Strategy{
		Axes: []MatrixAxis{
			{Key: "python-version", Values: []string{"3.9", "3.10", "3.11"}},
		},
	}

	instances := s.Expand()
	require.Len(t, instances, 3)
	assert.Equal(t, "3.9", instances[0].Values["python-version"])
	assert.Equal(t, "3.10", instances[1].Values["python-version"])
	assert.Equal(t, "3.11", instances[2].Values["python-version"])
}

func TestStrategyExpandCartesianProduct(t *testing.T) {
	s := Strategy{
		Axes: []MatrixAxis{
			{Key: "version", Values: []string{"3.9", "3.10"}},
			{Key: "os", Values: []string{"linux", "darwin", "windows"}},
		},
	}

	instances := s.Expand()
	require.Len(t, instances, 6, "2x3 matrix should expand to 6 instances")

	// First axis varies slowest, declaration order is preserved.
	assert.Equal(t, map[string]string{"version": "3.9", "os": "linux"}, instances[0].Values)
	assert.Equal(t, map[string]string{"version": "3.9", "os": "windows"}, instances[2].Values)
	assert.Equal(t, map[string]string{"version": "3.10", "os": "linux"}, instances[3].Values)

	// Expansion is deterministic across calls.
	again := s.Expand()
	assert.Equal(t, instances, again)
}

func TestStrategyExpandEmptyMatrix(t *testing.T) {
	var s Strategy

	instances := s.Expand()
	require.Len(t, instances, 1, "empty matrix should yield one empty instance")
	assert.Empty(t, instances[0].Keys)
	assert.Equal(t, "", instances[0].Suffix())
}

func TestInstanceName(t *testing.T) {
	job := &Job{ID: "test"}
	s := Strategy{
		Axes: []MatrixAxis{
			{Key: "version", Values: []string{"3.9"}},
			{Key: "os", Values: []string{"linux"}},
		},
	}

	instances := s.Expand()
	require.Len(t, instances, 1)
	assert.Equal(t, "test (3.9, linux)", InstanceName(job, instances[0]))

	plain := MatrixInstance{}
	assert.Equal(t, "test", InstanceName(job, plain))
}

func TestStrategyValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Strategy
		wantErr bool
	}{
		{"empty strategy", Strategy{}, false},
		{"valid matrix", Strategy{Axes: []MatrixAxis{{Key: "v", Values: []string{"1"}}}}, false},
		{"negative max-parallel", Strategy{MaxParallel: -1}, true},
		{"axis with no values", Strategy{Axes: []MatrixAxis{{Key: "v"}}}, true},
		{"empty axis key", Strategy{Axes: []MatrixAxis{{Key: "", Values: []string{"1"}}}}, true},
		{
			"duplicate axis",
			Strategy{Axes: []MatrixAxis{
				{Key: "v", Values: []string{"1"}},
				{Key: "v", Values: []string{"2"}},
			}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
