// Package encryption seals small secrets, such as OAuth token files, at rest.
package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// Sealer encrypts and decrypts a secret held in memory.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// AgeSealer implements Sealer using filippo.io/age with an X25519 identity
// stored in a 0600 file. The identity is both the key to open and, through
// its recipient, the key to seal.
type AgeSealer struct {
	identityPath string
}

var _ Sealer = (*AgeSealer)(nil)

// NewAgeSealer creates an AgeSealer backed by the identity file at identityPath.
func NewAgeSealer(identityPath string) *AgeSealer {
	return &AgeSealer{identityPath: identityPath}
}

// GenerateIdentity creates a new X25519 identity file and returns its public
// recipient string. An existing identity is never overwritten, since that
// would make previously sealed files unreadable.
func (s *AgeSealer) GenerateIdentity() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.identityPath), 0700); err != nil {
		return "", fmt.Errorf("creating identity directory: %w", err)
	}

	f, err := os.OpenFile(s.identityPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("identity already exists at %s", s.identityPath)
		}
		return "", fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	recipient := identity.Recipient().String()
	content := fmt.Sprintf("# public key: %s\n%s\n", recipient, identity.String())
	if _, err := io.WriteString(f, content); err != nil {
		return "", fmt.Errorf("writing identity: %w", err)
	}
	return recipient, nil
}

// IsConfigured reports whether the identity file exists.
func (s *AgeSealer) IsConfigured() bool {
	_, err := os.Stat(s.identityPath)
	return err == nil
}

// Seal encrypts plaintext to the identity's recipient.
func (s *AgeSealer) Seal(plaintext []byte) ([]byte, error) {
	identity, err := s.loadIdentity()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts data produced by Seal.
func (s *AgeSealer) Open(sealed []byte) ([]byte, error) {
	identity, err := s.loadIdentity()
	if err != nil {
		return nil, err
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plaintext, nil
}

func (s *AgeSealer) loadIdentity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(s.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity in %s", s.identityPath)
}
