package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"snapsync/internal/encryption"
	"snapsync/internal/snap"
)

// ErrInvalidToken means the token file exists but does not hold a usable token.
var ErrInvalidToken = errors.New("invalid token file")

// TokenStore persists one OAuth token in a project-scoped file.
type TokenStore struct {
	path   string
	sealer encryption.Sealer
}

// NewTokenStore creates a TokenStore for path. sealer may be nil, in which
// case the file holds plain JSON.
func NewTokenStore(path string, sealer encryption.Sealer) *TokenStore {
	if sealer == nil {
		sealer = encryption.PlainSealer{}
	}
	return &TokenStore{path: path, sealer: sealer}
}

// Path returns the token file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Load returns the stored token, or nil if no token has been saved. A file
// that opens but does not decode to a token yields ErrInvalidToken.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	plain, err := s.sealer.Open(data)
	if err != nil {
		return nil, fmt.Errorf("opening token file %s: %w", s.path, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidToken, s.path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w %s: no access or refresh token", ErrInvalidToken, s.path)
	}
	return &tok, nil
}

// Save writes tok atomically with owner-only permissions.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	plain, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	data, err := s.sealer.Seal(plain)
	if err != nil {
		return fmt.Errorf("sealing token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	// CreateTemp opens with 0600; the rename keeps that mode.
	tmp, err := os.CreateTemp(dir, ".tmp-token-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// RemoteFromToken converts an OAuth token into the pipeline's credential.
func RemoteFromToken(tok *oauth2.Token) *snap.RemoteCredential {
	return &snap.RemoteCredential{
		Provider:     ProviderOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}

// TokenFromRemote converts a credential back into an OAuth token.
func TokenFromRemote(cred *snap.RemoteCredential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
	}
}
