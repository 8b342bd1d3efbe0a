package snap

import (
	"context"
	"io"
	"time"
)

// RemoteCredential is the material needed to talk to a remote store.
// OAuth providers fill the token fields; key-pair providers fill KeyID and
// SecretKey, plus AccessToken when the keys come with a session token.
type RemoteCredential struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	KeyID        string
	SecretKey    string
}

// CredentialManager obtains a credential, reusing a persisted one when the
// provider still accepts it.
type CredentialManager interface {
	Acquire(ctx context.Context) (*RemoteCredential, error)
}

// RemoteObject is the remote store's record of an uploaded snapshot.
type RemoteObject struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
}

// ObjectMeta describes content being written to a remote store.
type ObjectMeta struct {
	Name        string
	ContentType string
	Size        int64
}

// RemoteStore is the generic object store contract the sync client relies on.
// Stores do not enforce name uniqueness.
type RemoteStore interface {
	// List returns objects whose name equals name exactly, in listing order.
	List(ctx context.Context, name string) ([]RemoteObject, error)

	// Create stores a new object and returns its record.
	Create(ctx context.Context, meta ObjectMeta, r io.Reader) (*RemoteObject, error)

	// Update replaces the content of the object identified by id, keeping its identifier.
	Update(ctx context.Context, id string, meta ObjectMeta, r io.Reader) (*RemoteObject, error)
}

// Connector opens an authenticated RemoteStore from a credential.
type Connector interface {
	Connect(ctx context.Context, cred *RemoteCredential) (RemoteStore, error)
}
