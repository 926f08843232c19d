package models

import (
	"regexp"
	"strings"
)

// exprPattern matches ${{ matrix.key }} and ${{ env.KEY }} expressions.
// Keys may contain letters, digits, underscores, dots, and hyphens.
var exprPattern = regexp.MustCompile(`\$\{\{\s*(matrix|env)\.([A-Za-z0-9_][A-Za-z0-9_.-]*)\s*\}\}`)

// Interpolate substitutes ${{ matrix.<key> }} and ${{ env.<key> }}
// expressions in s. Unknown references resolve to the empty string.
func Interpolate(s string, matrix map[string]string, env map[string]string) string {
	if !strings.Contains(s, "${{") {
		return s
	}
	return exprPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := exprPattern.FindStringSubmatch(match)
		scope, key := groups[1], groups[2]
		switch scope {
		case "matrix":
			return matrix[key]
		case "env":
			return env[key]
		}
		return ""
	})
}

// InterpolateMap applies Interpolate to every value of m, returning a new
// map. A nil input returns nil.
func InterpolateMap(m map[string]string, matrix map[string]string, env map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Interpolate(v, matrix, env)
	}
	return out
}
