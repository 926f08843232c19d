package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownParserTaggedBlock(t *testing.T) {
	doc := "# Release pipeline\n" +
		"\n" +
		"Some prose about the pipeline.\n" +
		"\n" +
		"```yaml workflow\n" +
		"name: CI\n" +
		"on: push\n" +
		"jobs:\n" +
		"  test:\n" +
		"    steps:\n" +
		"      - run: pytest\n" +
		"```\n"

	w, err := NewMarkdownParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "CI", w.Name)
	require.Len(t, w.Jobs, 1)
	assert.Equal(t, "pytest", w.Jobs[0].Steps[0].Run)
}

func TestMarkdownParserPlainYAMLFallback(t *testing.T) {
	doc := "Intro.\n" +
		"\n" +
		"```yaml\n" +
		"name: Lint\n" +
		"on: pull_request\n" +
		"jobs:\n" +
		"  lint:\n" +
		"    steps:\n" +
		"      - run: flake8 .\n" +
		"```\n"

	w, err := NewMarkdownParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Lint", w.Name)
}

func TestMarkdownParserTaggedWinsOverPlain(t *testing.T) {
	doc := "```yaml\n" +
		"name: Wrong\n" +
		"on: push\n" +
		"jobs:\n" +
		"  a:\n" +
		"    steps: [{run: \"true\"}]\n" +
		"```\n" +
		"\n" +
		"```yaml workflow\n" +
		"name: Right\n" +
		"on: push\n" +
		"jobs:\n" +
		"  a:\n" +
		"    steps: [{run: \"true\"}]\n" +
		"```\n"

	w, err := NewMarkdownParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Right", w.Name)
}

func TestMarkdownParserErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"empty input", "", "empty workflow file"},
		{"no code block", "# Just prose\n\nNothing else.\n", "no workflow code block"},
		{"non-yaml block only", "```python\nprint('hi')\n```\n", "no workflow code block"},
		{
			"invalid embedded yaml",
			"```yaml workflow\n{{{{\n```\n",
			"embedded workflow block",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMarkdownParser().Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
