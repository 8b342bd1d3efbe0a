// Package archive turns a staged project tree into a single zip file.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"snapsync/internal/snap"
	"snapsync/internal/staging"
)

// ZipArchiver implements snap.Archiver. It stages the collected entries under
// the job's staging root and compresses that tree into the job's archive path.
type ZipArchiver struct {
	level  int
	logger snap.Logger
}

var _ snap.Archiver = (*ZipArchiver)(nil)

// NewZipArchiver creates a ZipArchiver that deflates files at level
// (flate.HuffmanOnly through flate.BestCompression, or flate.DefaultCompression).
func NewZipArchiver(level int, logger snap.Logger) (*ZipArchiver, error) {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	return &ZipArchiver{level: level, logger: logger}, nil
}

// Build stages entries and writes the archive. Neither the staging root nor
// the archive path may exist beforehand; if either does, nothing is touched.
// On failure the partial staging tree is left in place.
func (z *ZipArchiver) Build(ctx context.Context, job *snap.SnapshotJob, entries []snap.Entry) (*snap.ArchiveInfo, error) {
	for _, p := range []string{job.StagingRoot, job.ArchivePath} {
		if err := checkAbsent(p); err != nil {
			return nil, &snap.ArchiveError{Op: "precheck", Err: err}
		}
	}

	area, err := staging.Create(job.StagingRoot, z.logger)
	if err != nil {
		return nil, &snap.ArchiveError{Op: "stage", Err: err}
	}
	if err := area.StageAll(ctx, entries); err != nil {
		return nil, &snap.ArchiveError{Op: "stage", Err: err}
	}
	z.logger.Debug("staging complete", "root", area.Root(), "files", area.Count(), "bytes", area.Size())

	n, err := z.Compress(ctx, job.StagingRoot, job.ArchivePath)
	if err != nil {
		return nil, &snap.ArchiveError{Op: "compress", Err: err}
	}

	info, err := os.Stat(job.ArchivePath)
	if err != nil {
		return nil, &snap.ArchiveError{Op: "stat", Err: err}
	}
	return &snap.ArchiveInfo{
		Path:    job.ArchivePath,
		Size:    info.Size(),
		Entries: n,
	}, nil
}

// Compress writes the tree under root to a new zip file at dst and returns the
// number of entries written. dst must not exist.
func (z *ZipArchiver) Compress(ctx context.Context, root, dst string) (int, error) {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("%w: archive %s", snap.ErrCollision, dst)
		}
		return 0, err
	}

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, z.level)
	})

	n, werr := writeTree(ctx, zw, root)
	if cerr := zw.Close(); werr == nil {
		werr = cerr
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return n, werr
}

func writeTree(ctx context.Context, zw *zip.Writer, root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := writeEntry(zw, filepath.ToSlash(rel), p, info); err != nil {
			return fmt.Errorf("adding %s: %w", rel, err)
		}
		n++
		return nil
	})
	return n, err
}

func writeEntry(zw *zip.Writer, name, path string, info fs.FileInfo) error {
	header := &zip.FileHeader{
		Name:     name,
		Modified: info.ModTime(),
	}
	header.SetMode(info.Mode())

	mode := info.Mode()
	switch {
	case mode.IsDir():
		header.Name += "/"
	case mode.IsRegular():
		header.Method = zip.Deflate
		header.UncompressedSize64 = uint64(info.Size())
	case mode&fs.ModeSymlink != 0:
	default:
		return fmt.Errorf("unsupported file type %v", mode.Type())
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	switch {
	case mode.IsDir():
		return nil
	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, target)
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}

// checkAbsent reports a collision if anything exists at p, without following symlinks.
func checkAbsent(p string) error {
	_, err := os.Lstat(p)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s already exists", snap.ErrCollision, p)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}
