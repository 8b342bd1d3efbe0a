package snap

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ArchiveExt is appended to a project name to form its logical name.
const ArchiveExt = ".zip"

// ArchiveContentType is the MIME type used for uploaded snapshots.
const ArchiveContentType = "application/zip"

// SnapshotJob is the unit of work for one pipeline run.
// It is created at the start of a run and owned by that run alone.
type SnapshotJob struct {
	// SourceRoot is the absolute path of the tree being backed up.
	SourceRoot string
	// StagingRoot is the run-scoped directory holding the filtered copy.
	StagingRoot string
	// ArchivePath is the compressed snapshot written from StagingRoot.
	ArchivePath string
	// LogicalName is both the archive file name and the remote object name.
	LogicalName string
	// ExcludePatterns are path fragments; any entry whose path contains one is skipped.
	ExcludePatterns []string
}

// NewJob derives a SnapshotJob for sourceRoot. Staging and archive paths are
// placed in tempDir. If name is empty the base name of sourceRoot is used as
// the project identity.
func NewJob(sourceRoot, tempDir, name string, excludes []string) (*SnapshotJob, error) {
	if sourceRoot == "" {
		return nil, fmt.Errorf("source root is required")
	}
	if tempDir == "" {
		return nil, fmt.Errorf("temp dir is required")
	}

	absRoot, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving source root: %w", err)
	}
	absTemp, err := filepath.Abs(tempDir)
	if err != nil {
		return nil, fmt.Errorf("resolving temp dir: %w", err)
	}

	if name == "" {
		name = filepath.Base(absRoot)
	}
	name = strings.TrimSuffix(name, ArchiveExt)
	if name == "" || name == "." || name == string(filepath.Separator) || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid project name: %q", name)
	}

	// The staging copy must not live inside the tree it copies.
	if rel, err := filepath.Rel(absRoot, absTemp); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("temp dir %s is inside source root %s", absTemp, absRoot)
	}

	logical := name + ArchiveExt
	return &SnapshotJob{
		SourceRoot:      absRoot,
		StagingRoot:     filepath.Join(absTemp, name),
		ArchivePath:     filepath.Join(absTemp, logical),
		LogicalName:     logical,
		ExcludePatterns: append([]string(nil), excludes...),
	}, nil
}
