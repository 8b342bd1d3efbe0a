package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"snapsync/internal/snap"
)

// Collector is the real filesystem implementation of snap.Collector.
// It lists the immediate children of a source root and drops excluded ones;
// an excluded directory is skipped whole, never descended into.
type Collector struct {
	logger snap.Logger
}

// NewCollector creates a Collector that reads the real filesystem.
func NewCollector(logger snap.Logger) *Collector {
	return &Collector{logger: logger}
}

// Collect returns the selected entries of job.SourceRoot ordered by name.
// Errors are returned as *snap.CollectionError.
func (c *Collector) Collect(ctx context.Context, job *snap.SnapshotJob) ([]snap.Entry, error) {
	root := job.SourceRoot

	info, err := os.Stat(root)
	if err != nil {
		return nil, &snap.CollectionError{Op: "stat source root", Err: err}
	}
	if !info.IsDir() {
		return nil, &snap.CollectionError{Op: "stat source root", Err: fmt.Errorf("not a directory: %s", root)}
	}

	extra, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, &snap.CollectionError{Op: "read ignore file", Err: err}
	}

	fragments := append(append(append([]string{}, defaultExcludes...), job.ExcludePatterns...), extra...)
	matcher := NewExclusionMatcher(fragments)

	// os.ReadDir sorts by file name, which keeps the output deterministic.
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, &snap.CollectionError{Op: "read source root", Err: err}
	}

	var entries []snap.Entry
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, &snap.CollectionError{Op: "read source root", Err: err}
		}
		if matcher.Match(de.Name()) {
			c.logger.Debug("entry excluded", "name", de.Name())
			continue
		}
		entryInfo, err := de.Info()
		if err != nil {
			return nil, &snap.CollectionError{Op: "stat entry", Err: fmt.Errorf("%s: %w", de.Name(), err)}
		}
		entries = append(entries, snap.Entry{
			Name: de.Name(),
			Path: filepath.Join(root, de.Name()),
			Mode: entryInfo.Mode(),
		})
	}

	c.logger.Debug("source collected", "root", root, "entries", len(entries), "excludes", len(matcher.Fragments()))
	return entries, nil
}

// Compile-time check that Collector implements snap.Collector interface
var _ snap.Collector = (*Collector)(nil)
