package guard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const marker = "DO NOT SUBMIT"

// writeTree creates files under dir from a path -> content map.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

func TestScanFindsMarker(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.py":      "print('ok')\n# DO NOT SUBMIT: remove debug flag\nx = 1\n",
		"lib/util.py":  "def f():\n    return 2\n",
		"lib/debug.py": "FLAG = True  # DO NOT SUBMIT\n",
	})

	matches, err := NewScanner(marker).Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Walk order is lexical, top-down.
	assert.Equal(t, "lib/debug.py", matches[0].File)
	assert.Equal(t, 1, matches[0].Line)
	assert.Equal(t, "main.py", matches[1].File)
	assert.Equal(t, 2, matches[1].Line)
}

func TestScanCleanTree(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.py": "print('ok')\n",
		"README":  "nothing to see\n",
	})

	matches, err := NewScanner(marker).Scan(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCheckExitSemantics(t *testing.T) {
	// Marker present: Check must return an error. Marker absent: nil.
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"ok.py": "x = 1\n"})

	s := NewScanner(marker)
	require.NoError(t, s.Check(context.Background(), dir))

	writeTree(t, dir, map[string]string{"bad.py": "y = 2  # DO NOT SUBMIT\n"})
	err := s.Check(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMarkerFound))
	assert.Contains(t, err.Error(), "bad.py:1")
}

func TestScanSkipsVCSAndToolDirs(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		".git/config":             "DO NOT SUBMIT\n",
		"node_modules/pkg/x.js":   "// DO NOT SUBMIT\n",
		"__pycache__/mod.pyc.txt": "DO NOT SUBMIT\n",
		".gantry/history.note":    "DO NOT SUBMIT\n",
		"src/ok.py":               "x = 1\n",
	})

	matches, err := NewScanner(marker).Scan(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestScanSkipsBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	binary := append([]byte("DO NOT SUBMIT"), 0x00, 0x01, 0x02)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), binary, 0644))

	matches, err := NewScanner(marker).Scan(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestScanIncludeExclude(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"src/a.py":    "# DO NOT SUBMIT\n",
		"src/b.go":    "// DO NOT SUBMIT\n",
		"docs/c.py":   "# DO NOT SUBMIT\n",
		"docs/d.md":   "DO NOT SUBMIT\n",
		"src/deep/e.py": "# DO NOT SUBMIT\n",
	})

	s := &Scanner{
		Marker:  marker,
		Paths:   []string{"**/*.py"},
		Exclude: []string{"docs/**"},
	}

	matches, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, m.File)
	}
	assert.Equal(t, []string{"src/a.py", "src/deep/e.py"}, files)
}

func TestScanSkipsListedFiles(t *testing.T) {
	// The file declaring the marker (a workflow definition) must not count
	// as an occurrence.
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"ci.yaml":    "marker: DO NOT SUBMIT\n",
		"src/bad.py": "# DO NOT SUBMIT\n",
	})

	s := NewScanner(marker)
	s.SkipFiles = []string{filepath.Join(dir, "ci.yaml")}

	matches, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "src/bad.py", matches[0].File)

	// Without the skip list the declaration matches too.
	matches, err = NewScanner(marker).Scan(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestScanCanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.py": "x\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(marker).Scan(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanEmptyMarker(t *testing.T) {
	_, err := (&Scanner{}).Scan(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		rel     string
		want    bool
	}{
		{"*.py", "main.py", true},
		{"*.py", "src/deep/main.py", true}, // bare pattern matches base name
		{"*.py", "main.go", false},
		{"src/*.py", "src/main.py", true},
		{"src/*.py", "src/deep/main.py", false},
		{"**/*.py", "main.py", true},
		{"**/*.py", "src/deep/main.py", true},
		{"docs/**", "docs/guide.md", true},
		{"docs/**", "docs/sub/guide.md", true},
		{"docs/**", "src/guide.md", false},
		{"src/**/test_*.py", "src/a/b/test_x.py", true},
		{"src/**/test_*.py", "src/test_x.py", true},
		{"", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.rel, func(t *testing.T) {
			if got := MatchGlob(tt.pattern, tt.rel); got != tt.want {
				t.Errorf("MatchGlob(%q, %q) = %v, want %v", tt.pattern, tt.rel, got, tt.want)
			}
		})
	}
}
