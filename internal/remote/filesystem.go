package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"snapsync/internal/snap"
)

// FileSystemStore is a filesystem-based implementation of snap.RemoteStore,
// for backing up to a mounted share or a second disk. Objects are stored as:
//
//	<root>/
//	  objects/
//	    <id>        (content)
//	    <id>.json   (sidecar: name, content type, size, creation time)
type FileSystemStore struct {
	root       string
	objectsDir string
	clock      snap.Clock
	ids        snap.IDGenerator
	rename     func(oldpath, newpath string) error
}

var (
	_ snap.RemoteStore = (*FileSystemStore)(nil)
	_ snap.Connector   = (*FileSystemStore)(nil)
)

type sidecar struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

const sidecarExt = ".json"

// NewFileSystemStore creates a store rooted at root, creating its directories.
func NewFileSystemStore(root string, clock snap.Clock, ids snap.IDGenerator) (*FileSystemStore, error) {
	objectsDir := filepath.Join(root, "objects")
	if err := os.MkdirAll(objectsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create objects directory: %w", err)
	}
	return &FileSystemStore{
		root:       root,
		objectsDir: objectsDir,
		clock:      clock,
		ids:        ids,
		rename:     os.Rename,
	}, nil
}

// Connect checks that the store root is usable and returns the store.
func (v *FileSystemStore) Connect(ctx context.Context, _ *snap.RemoteCredential) (snap.RemoteStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := v.ValidateSetup(); err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateSetup verifies that the store directories are accessible.
func (v *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{v.root, v.objectsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("store directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", dir)
		}
	}
	return nil
}

// List returns objects named name, oldest first.
func (v *FileSystemStore) List(ctx context.Context, name string) ([]snap.RemoteObject, error) {
	entries, err := os.ReadDir(v.objectsDir)
	if err != nil {
		return nil, fmt.Errorf("reading objects directory: %w", err)
	}

	var matches []sidecar
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), sidecarExt) {
			continue
		}
		sc, err := v.readSidecar(strings.TrimSuffix(e.Name(), sidecarExt))
		if err != nil {
			return nil, err
		}
		if sc.Name == name {
			matches = append(matches, *sc)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})

	out := make([]snap.RemoteObject, len(matches))
	for i, sc := range matches {
		out[i] = sc.object()
	}
	return out, nil
}

func (v *FileSystemStore) Create(ctx context.Context, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	sc := &sidecar{
		ID:          v.ids.New(),
		Name:        meta.Name,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		CreatedAt:   v.clock.Now().UTC(),
	}
	if err := v.writeFile(v.contentPath(sc.ID), r, meta.Size); err != nil {
		return nil, err
	}
	if err := v.writeSidecar(sc); err != nil {
		os.Remove(v.contentPath(sc.ID))
		return nil, err
	}
	obj := sc.object()
	return &obj, nil
}

// Update replaces the content and sidecar of id. Both are written to temp
// files first; if either cannot be put in place, the previous pair is restored.
func (v *FileSystemStore) Update(ctx context.Context, id string, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	sc, err := v.readSidecar(id)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	sc.ContentType = meta.ContentType
	sc.Size = meta.Size

	contentTmp, err := v.stageFile(r, meta.Size)
	if err != nil {
		return nil, err
	}
	defer os.Remove(contentTmp)

	data, err := sc.encode()
	if err != nil {
		return nil, err
	}
	sidecarTmp, err := v.stageFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer os.Remove(sidecarTmp)

	if err := v.replacePair(id, contentTmp, sidecarTmp); err != nil {
		return nil, err
	}
	obj := sc.object()
	return &obj, nil
}

// replacePair moves the staged content and sidecar over those of id. The
// old content is kept aside until the sidecar is in place.
func (v *FileSystemStore) replacePair(id, contentTmp, sidecarTmp string) error {
	contentPath := v.contentPath(id)
	backup := filepath.Join(v.objectsDir, ".old-"+id)
	if err := v.rename(contentPath, backup); err != nil {
		return fmt.Errorf("setting aside %s: %w", id, err)
	}
	if err := v.rename(contentTmp, contentPath); err != nil {
		v.rename(backup, contentPath)
		return fmt.Errorf("replacing content of %s: %w", id, err)
	}
	if err := v.rename(sidecarTmp, contentPath+sidecarExt); err != nil {
		os.Remove(contentPath)
		v.rename(backup, contentPath)
		return fmt.Errorf("replacing sidecar of %s: %w", id, err)
	}
	os.Remove(backup)
	return nil
}

// Open returns the content stored under id.
func (v *FileSystemStore) Open(id string) (io.ReadCloser, error) {
	f, err := os.Open(v.contentPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return f, err
}

func (v *FileSystemStore) contentPath(id string) string {
	return filepath.Join(v.objectsDir, id)
}

func (v *FileSystemStore) readSidecar(id string) (*sidecar, error) {
	data, err := os.ReadFile(v.contentPath(id) + sidecarExt)
	if err != nil {
		return nil, err
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decoding sidecar for %s: %w", id, err)
	}
	return &sc, nil
}

func (v *FileSystemStore) writeSidecar(sc *sidecar) error {
	data, err := sc.encode()
	if err != nil {
		return err
	}
	return v.writeFile(v.contentPath(sc.ID)+sidecarExt, bytes.NewReader(data), int64(len(data)))
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func (v *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpPath, err := v.stageFile(r, expectedSize)
	if err != nil {
		return err
	}
	if err := v.rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// stageFile copies r into a temp file in the objects directory and checks its
// size. The caller owns the returned path.
func (v *FileSystemStore) stageFile(r io.Reader, expectedSize int64) (string, error) {
	tmpFile, err := os.CreateTemp(v.objectsDir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	success = true
	return tmpPath, nil
}

func (sc *sidecar) encode() ([]byte, error) {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding sidecar: %w", err)
	}
	return data, nil
}

func (sc *sidecar) object() snap.RemoteObject {
	return snap.RemoteObject{
		ID:          sc.ID,
		Name:        sc.Name,
		ContentType: sc.ContentType,
		Size:        sc.Size,
	}
}
