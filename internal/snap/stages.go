package snap

import (
	"context"
	"io/fs"
)

// Entry is an immediate child of a source root selected for the snapshot.
type Entry struct {
	// Name is the base name, used as the relative name inside the staging root.
	Name string
	// Path is the absolute path of the entry in the source tree.
	Path string
	Mode fs.FileMode
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Mode.IsDir() }

// Saver persists in-memory application state before the tree is collected.
type Saver interface {
	Save(ctx context.Context) error
}

// Collector enumerates the entries of a job's source root, minus exclusions.
type Collector interface {
	Collect(ctx context.Context, job *SnapshotJob) ([]Entry, error)
}

// ArchiveInfo describes a freshly built archive.
type ArchiveInfo struct {
	Path    string
	Size    int64
	Entries int
}

// Archiver copies entries into the job's staging root and compresses it into
// the job's archive path. It must refuse to run when either path exists.
type Archiver interface {
	Build(ctx context.Context, job *SnapshotJob, entries []Entry) (*ArchiveInfo, error)
}
