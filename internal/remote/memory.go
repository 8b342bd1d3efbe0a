package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"snapsync/internal/snap"
)

// ErrObjectNotFound is returned by Update when the identifier is unknown.
var ErrObjectNotFound = errors.New("remote object not found")

// MemoryStore is an in-memory implementation of snap.RemoteStore.
// Objects are listed in creation order. It is its own Connector, which
// makes it useful for tests and dry runs.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects []*memoryObject
	nextID  int
}

type memoryObject struct {
	obj  snap.RemoteObject
	data []byte
}

var (
	_ snap.RemoteStore = (*MemoryStore)(nil)
	_ snap.Connector   = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Connect returns the store itself; no credential is needed.
func (m *MemoryStore) Connect(ctx context.Context, _ *snap.RemoteCredential) (snap.RemoteStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MemoryStore) List(ctx context.Context, name string) ([]snap.RemoteObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []snap.RemoteObject
	for _, o := range m.objects {
		if o.obj.Name == name {
			out = append(out, o.obj)
		}
	}
	return out, nil
}

func (m *MemoryStore) Create(ctx context.Context, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	data, err := readExactly(r, meta.Size)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	o := &memoryObject{
		obj: snap.RemoteObject{
			ID:          fmt.Sprintf("mem-%d", m.nextID),
			Name:        meta.Name,
			ContentType: meta.ContentType,
			Size:        int64(len(data)),
		},
		data: data,
	}
	m.objects = append(m.objects, o)
	obj := o.obj
	return &obj, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	data, err := readExactly(r, meta.Size)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.objects {
		if o.obj.ID != id {
			continue
		}
		o.data = data
		o.obj.ContentType = meta.ContentType
		o.obj.Size = int64(len(data))
		obj := o.obj
		return &obj, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
}

// Content returns a copy of the bytes stored under id.
func (m *MemoryStore) Content(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.objects {
		if o.obj.ID == id {
			return append([]byte(nil), o.data...), true
		}
	}
	return nil, false
}

// Objects returns every stored object in creation order.
func (m *MemoryStore) Objects() []snap.RemoteObject {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]snap.RemoteObject, len(m.objects))
	for i, o := range m.objects {
		out[i] = o.obj
	}
	return out
}

// readExactly reads r to EOF and checks the byte count against size.
func readExactly(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}
