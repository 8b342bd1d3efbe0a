package testutil

import (
	"context"
	"io"
	"sync"

	"snapsync/internal/snap"
)

// StubCredentialManager returns a fixed credential or error and counts calls.
// With Block set, Acquire behaves like an operator who never answers: it
// closes Started and waits for ctx to be done.
type StubCredentialManager struct {
	Cred    *snap.RemoteCredential
	Err     error
	Calls   int
	Block   bool
	Started chan struct{}
	once    sync.Once
}

// NewStubCredentialManager returns a manager that always succeeds.
func NewStubCredentialManager() *StubCredentialManager {
	return &StubCredentialManager{
		Cred:    &snap.RemoteCredential{Provider: "stub", AccessToken: "token"},
		Started: make(chan struct{}),
	}
}

func (m *StubCredentialManager) Acquire(ctx context.Context) (*snap.RemoteCredential, error) {
	m.Calls++
	if m.Block {
		m.once.Do(func() { close(m.Started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Cred, nil
}

// StoreConnector is a snap.Connector that hands out a fixed store.
type StoreConnector struct {
	Store snap.RemoteStore
	Err   error
}

func (c *StoreConnector) Connect(ctx context.Context, _ *snap.RemoteCredential) (snap.RemoteStore, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Store, nil
}

// FaultyStore wraps a RemoteStore and fails the configured operations.
type FaultyStore struct {
	snap.RemoteStore
	ListErr   error
	CreateErr error
	UpdateErr error
}

func (s *FaultyStore) List(ctx context.Context, name string) ([]snap.RemoteObject, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.RemoteStore.List(ctx, name)
}

func (s *FaultyStore) Create(ctx context.Context, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	return s.RemoteStore.Create(ctx, meta, r)
}

func (s *FaultyStore) Update(ctx context.Context, id string, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	return s.RemoteStore.Update(ctx, id, meta, r)
}

// BlockingStore lists nothing and blocks every upload until ctx is done.
// Started is closed when the first upload begins.
type BlockingStore struct {
	Started chan struct{}
	once    sync.Once
}

func NewBlockingStore() *BlockingStore {
	return &BlockingStore{Started: make(chan struct{})}
}

func (s *BlockingStore) List(ctx context.Context, _ string) ([]snap.RemoteObject, error) {
	return nil, ctx.Err()
}

func (s *BlockingStore) Create(ctx context.Context, _ snap.ObjectMeta, _ io.Reader) (*snap.RemoteObject, error) {
	return nil, s.block(ctx)
}

func (s *BlockingStore) Update(ctx context.Context, _ string, _ snap.ObjectMeta, _ io.Reader) (*snap.RemoteObject, error) {
	return nil, s.block(ctx)
}

func (s *BlockingStore) block(ctx context.Context) error {
	s.once.Do(func() { close(s.Started) })
	<-ctx.Done()
	return ctx.Err()
}
