package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/calder/gantry/internal/models"
)

// MarkdownParser extracts a workflow definition embedded in a Markdown
// document. The workflow lives in the first fenced code block whose info
// string is "yaml workflow" or "workflow"; plain "yaml" blocks are used as
// a fallback when no tagged block exists. This lets a workflow live inside
// its own documentation.
type MarkdownParser struct {
	markdown goldmark.Markdown
	yaml     *YAMLParser
}

// NewMarkdownParser creates a new Markdown workflow parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
		yaml:     NewYAMLParser(),
	}
}

// Parse reads a Markdown document, locates the embedded workflow code
// block, and parses its contents as YAML.
func (p *MarkdownParser) Parse(r io.Reader) (*models.Workflow, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if len(content) == 0 {
		return nil, errors.New("empty workflow file")
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))

	block, err := findWorkflowBlock(doc, content)
	if err != nil {
		return nil, err
	}

	workflow, err := p.yaml.Parse(bytes.NewReader(block))
	if err != nil {
		return nil, fmt.Errorf("embedded workflow block: %w", err)
	}
	return workflow, nil
}

// findWorkflowBlock walks the document AST collecting fenced code blocks.
// Tagged blocks ("workflow" anywhere in the info string) win over plain
// yaml blocks.
func findWorkflowBlock(doc ast.Node, source []byte) ([]byte, error) {
	var tagged, yamlOnly []byte

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		info := ""
		if fenced.Info != nil {
			info = strings.TrimSpace(string(fenced.Info.Segment.Value(source)))
		}

		fields := strings.Fields(info)
		isWorkflow := false
		isYAML := false
		for _, f := range fields {
			switch f {
			case "workflow":
				isWorkflow = true
			case "yaml", "yml":
				isYAML = true
			}
		}

		if !isWorkflow && !isYAML {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			buf.Write(segment.Value(source))
		}

		if isWorkflow && tagged == nil {
			tagged = buf.Bytes()
			return ast.WalkStop, nil
		}
		if isYAML && yamlOnly == nil {
			yamlOnly = buf.Bytes()
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk markdown: %w", err)
	}

	if tagged != nil {
		return tagged, nil
	}
	if yamlOnly != nil {
		return yamlOnly, nil
	}
	return nil, errors.New("no workflow code block found in markdown")
}
