package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName lists extra exclude fragments, one per line, in a source root.
const IgnoreFileName = ".snapsyncignore"

// defaultExcludes are always applied regardless of config or the ignore file.
var defaultExcludes = []string{IgnoreFileName}

// ExclusionMatcher checks root-relative paths against exclude fragments.
// A path is excluded when it contains any fragment as a substring; fragments
// are not globs.
type ExclusionMatcher struct {
	fragments []string
}

// NewExclusionMatcher creates an ExclusionMatcher. Fragments are used as
// given; only empty ones are dropped, since they would match every path.
func NewExclusionMatcher(rawFragments []string) *ExclusionMatcher {
	var fragments []string
	for _, raw := range rawFragments {
		if raw == "" {
			continue
		}
		fragments = append(fragments, filepath.ToSlash(raw))
	}
	return &ExclusionMatcher{fragments: fragments}
}

// Match reports whether relativePath should be excluded.
func (m *ExclusionMatcher) Match(relativePath string) bool {
	if relativePath == "" {
		return false
	}
	normalized := filepath.ToSlash(relativePath)
	for _, f := range m.fragments {
		if strings.Contains(normalized, f) {
			return true
		}
	}
	return false
}

// Fragments returns the active fragments in the order they were given.
func (m *ExclusionMatcher) Fragments() []string {
	return append([]string(nil), m.fragments...)
}

// ParseIgnoreFile reads an ignore file and returns its fragments. Lines are
// trimmed; blank lines and lines starting with '#' are skipped.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
