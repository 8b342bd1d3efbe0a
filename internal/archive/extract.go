package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
)

// Extract restores the archive at archivePath into dest, which is created if
// missing. Entries that would land outside dest, by name or through a
// symlink extracted earlier, are rejected.
func Extract(archivePath, dest string) (int, error) {
	zr, err := openReader(archivePath)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, fmt.Errorf("creating destination: %w", err)
	}

	for i, f := range zr.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return i, err
		}
		if err := checkParents(dest, target); err != nil {
			return i, fmt.Errorf("entry %q: %w", f.Name, err)
		}
		if err := extractFile(f, target); err != nil {
			return i, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}
	return len(zr.File), nil
}

// List returns the entry names in archive order.
func List(archivePath string) ([]string, error) {
	zr, err := openReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
	}
	return names, nil
}

func openReader(archivePath string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if zr != nil {
			// zip.ErrInsecurePath comes with an open reader.
			zr.Close()
		}
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)
	return zr, nil
}

func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("absolute entry name %q", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return target, nil
}

// checkParents fails if any existing directory between dest and target is a
// symlink. Missing components are created later as real directories.
func checkParents(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	cur := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("path passes through symlink %s", cur)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	mode := f.Mode()
	if mode.IsDir() {
		return os.MkdirAll(target, mode.Perm()|0700)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if mode&fs.ModeSymlink != 0 {
		link, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		return os.Symlink(string(link), target)
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode.Perm()|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(target, mode.Perm())
}
