// Package staging builds the temporary copy of a project that gets archived.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"snapsync/internal/snap"
)

// Area is a staging root populated with copies of collected entries.
type Area struct {
	root   string
	logger snap.Logger

	mu    sync.Mutex
	files int
	size  int64
}

// Create makes a new, empty staging root. It fails with snap.ErrCollision if
// root already exists, so a stale staging directory is never reused.
func Create(root string, logger snap.Logger) (*Area, error) {
	if err := os.MkdirAll(filepath.Dir(root), 0755); err != nil {
		return nil, fmt.Errorf("creating staging parent: %w", err)
	}
	if err := os.Mkdir(root, 0755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: staging root %s", snap.ErrCollision, root)
		}
		return nil, fmt.Errorf("creating staging root: %w", err)
	}
	return &Area{root: root, logger: logger}, nil
}

// Root returns the staging root directory.
func (a *Area) Root() string {
	return a.root
}

// Stage copies entry into the staging root under its own name.
func (a *Area) Stage(ctx context.Context, entry snap.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(a.root, entry.Name)
	if err := a.copyPath(ctx, entry.Path, dst); err != nil {
		return fmt.Errorf("staging %s: %w", entry.Name, err)
	}
	a.logger.Debug("staged entry", "name", entry.Name, "dir", entry.IsDir())
	return nil
}

// StageAll stages every entry in order, stopping at the first failure.
func (a *Area) StageAll(ctx context.Context, entries []snap.Entry) error {
	for _, e := range entries {
		if err := a.Stage(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of regular files and symlinks staged so far.
func (a *Area) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.files
}

// Size returns the total bytes of regular file content staged so far.
func (a *Area) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

func (a *Area) copyPath(ctx context.Context, src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	switch mode := info.Mode(); {
	case mode.IsRegular():
		n, err := copyFile(src, dst, info)
		if err != nil {
			return err
		}
		a.record(n)
		return nil
	case mode.IsDir():
		return a.copyDir(ctx, src, dst, info)
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := os.Symlink(target, dst); err != nil {
			return err
		}
		a.record(0)
		return nil
	default:
		return fmt.Errorf("unsupported file type %v: %s", mode.Type(), src)
	}
}

func (a *Area) copyDir(ctx context.Context, src, dst string, info os.FileInfo) error {
	// Owner rwx is kept so the tree can be populated and later removed.
	if err := os.Mkdir(dst, info.Mode().Perm()|0700); err != nil {
		return err
	}
	children, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.copyPath(ctx, filepath.Join(src, c.Name()), filepath.Join(dst, c.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (a *Area) record(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files++
	a.size += n
}

// copyFile copies a regular file, keeping its permission bits, and fails if
// the source changed while it was being read.
func copyFile(src, dst string, before os.FileInfo) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	perm := before.Mode().Perm()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm|0200)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	if err := out.Close(); err != nil {
		return n, err
	}
	// The create mode is filtered by umask.
	if err := os.Chmod(dst, perm); err != nil {
		return n, err
	}

	after, err := in.Stat()
	if err != nil {
		return n, fmt.Errorf("re-stat: %w", err)
	}
	if err := validateUnchanged(before, after); err != nil {
		return n, fmt.Errorf("file changed during staging: %w", err)
	}
	return n, nil
}

// validateUnchanged compares the metadata taken before and after a copy.
// Access time is ignored since the copy itself updates it.
func validateUnchanged(before, after os.FileInfo) error {
	if before.Size() != after.Size() {
		return fmt.Errorf("size changed: %d -> %d", before.Size(), after.Size())
	}
	if before.Mode() != after.Mode() {
		return fmt.Errorf("mode changed: %v -> %v", before.Mode(), after.Mode())
	}
	if !before.ModTime().Equal(after.ModTime()) {
		return fmt.Errorf("mtime changed: %v -> %v", before.ModTime(), after.ModTime())
	}
	c1, ok1 := changeTime(before)
	c2, ok2 := changeTime(after)
	if ok1 && ok2 && !c1.Equal(c2) {
		return fmt.Errorf("ctime changed: %v -> %v", c1, c2)
	}
	return nil
}
