// Package guard implements the forbidden-marker scan: a repository-wide
// text search that fails when any tracked source file contains a configured
// marker string.
package guard

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrMarkerFound indicates the marker text was found in at least one file.
var ErrMarkerFound = errors.New("forbidden marker found")

// Directories that are never scanned.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".gantry":      true,
}

// binarySniffLen is how many leading bytes are checked for NUL to classify
// a file as binary.
const binarySniffLen = 8 * 1024

// Match is a single marker occurrence.
type Match struct {
	File string // Path relative to the scan root
	Line int    // 1-based line number
	Text string // The matching line, trimmed
}

// Scanner searches a directory tree for a literal marker string.
type Scanner struct {
	Marker    string   // Literal text to search for (required)
	Paths     []string // Glob patterns to include (empty = all files)
	Exclude   []string // Glob patterns to exclude
	SkipFiles []string // Specific files never scanned, e.g. the workflow file declaring the marker
}

// NewScanner creates a Scanner for the given marker.
func NewScanner(marker string) *Scanner {
	return &Scanner{Marker: marker}
}

// Scan walks root and returns every marker occurrence in scanned files.
// VCS and tool directories, binary files, and excluded paths are skipped.
// Matches are returned in walk order (lexical by path, top-down).
func (s *Scanner) Scan(ctx context.Context, root string) ([]Match, error) {
	if s.Marker == "" {
		return nil, errors.New("guard marker is required")
	}

	// Resolve the skip list once; entries are compared by absolute path so
	// they hit regardless of how the scan root was spelled.
	skipFiles := make(map[string]bool, len(s.SkipFiles))
	for _, f := range s.SkipFiles {
		if abs, absErr := filepath.Abs(f); absErr == nil {
			skipFiles[abs] = true
		}
	}

	var matches []Match

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if len(skipFiles) > 0 {
			if abs, absErr := filepath.Abs(path); absErr == nil && skipFiles[abs] {
				return nil
			}
		}

		if !s.shouldScan(rel) {
			return nil
		}

		fileMatches, scanErr := s.scanFile(path, rel)
		if scanErr != nil {
			return fmt.Errorf("failed to scan %s: %w", rel, scanErr)
		}
		matches = append(matches, fileMatches...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return matches, nil
}

// Check scans root and returns ErrMarkerFound (wrapped, with locations) if
// the marker occurs anywhere. A clean tree returns nil. This is the exit
// semantics contract: marker present means non-zero, absent means zero.
func (s *Scanner) Check(ctx context.Context, root string) error {
	matches, err := s.Scan(ctx, root)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	locations := make([]string, 0, len(matches))
	for _, m := range matches {
		locations = append(locations, fmt.Sprintf("%s:%d", m.File, m.Line))
	}
	return fmt.Errorf("%w: %q in %s", ErrMarkerFound, s.Marker, strings.Join(locations, ", "))
}

// shouldScan applies include and exclude patterns to a slash-separated
// relative path. Includes default to everything when empty.
func (s *Scanner) shouldScan(rel string) bool {
	for _, pattern := range s.Exclude {
		if MatchGlob(pattern, rel) {
			return false
		}
	}
	if len(s.Paths) == 0 {
		return true
	}
	for _, pattern := range s.Paths {
		if MatchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

// scanFile reads one file line by line, collecting marker occurrences.
// Files with a NUL byte in their leading bytes are treated as binary and
// skipped.
func (s *Scanner) scanFile(path, rel string) ([]Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, binarySniffLen)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return nil, nil // binary file
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var matches []Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.Contains(line, s.Marker) {
			matches = append(matches, Match{
				File: rel,
				Line: lineNo,
				Text: strings.TrimSpace(line),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return matches, nil
}
