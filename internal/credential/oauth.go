// Package credential obtains the credential a remote store needs.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"snapsync/internal/snap"
)

// Provider names reported in snap.RemoteCredential.Provider.
const (
	ProviderOAuth  = "oauth"
	ProviderStatic = "static"
	ProviderNone   = "none"
)

// LoadGoogleConfig reads an OAuth client identity from a client_secret.json
// file downloaded from the Google Cloud console.
func LoadGoogleConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret %s: %w", path, err)
	}
	return cfg, nil
}

// OAuthManager implements snap.CredentialManager with a persisted OAuth token
// and an interactive authorization-code flow as fallback.
type OAuthManager struct {
	config   *oauth2.Config
	store    *TokenStore
	prompter Prompter
	logger   snap.Logger
	newState func() string
}

var _ snap.CredentialManager = (*OAuthManager)(nil)

// NewOAuthManager creates an OAuthManager.
func NewOAuthManager(config *oauth2.Config, store *TokenStore, prompter Prompter, logger snap.Logger) *OAuthManager {
	return &OAuthManager{
		config:   config,
		store:    store,
		prompter: prompter,
		logger:   logger,
		newState: uuid.NewString,
	}
}

// Acquire returns a usable token. A stored token is validated (and refreshed
// if expired) first; when there is none, it does not decode, or the provider
// rejects it, the operator is asked to authorize again. A sealed file that
// cannot be opened is an error.
func (m *OAuthManager) Acquire(ctx context.Context) (*snap.RemoteCredential, error) {
	stored, err := m.store.Load()
	if errors.Is(err, ErrInvalidToken) {
		m.logger.Warn("stored token unreadable, reauthorizing", "path", m.store.Path(), "error", err)
		stored = nil
	} else if err != nil {
		return nil, &snap.AuthError{Op: "load token", Err: err}
	}

	if stored != nil {
		tok, err := m.validate(ctx, stored)
		if err == nil {
			return RemoteFromToken(tok), nil
		}
		if ctx.Err() != nil {
			return nil, &snap.AuthError{Op: "validate token", Err: ctx.Err()}
		}
		m.logger.Warn("stored token rejected, reauthorizing", "path", m.store.Path(), "error", err)
	}

	tok, err := m.authorize(ctx)
	if err != nil {
		return nil, err
	}
	return RemoteFromToken(tok), nil
}

// validate asks the provider for a token based on stored and persists it if
// it was refreshed.
func (m *OAuthManager) validate(ctx context.Context, stored *oauth2.Token) (*oauth2.Token, error) {
	tok, err := m.config.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != stored.AccessToken {
		m.logger.Debug("token refreshed", "expiry", tok.Expiry)
		if err := m.store.Save(tok); err != nil {
			return nil, fmt.Errorf("saving refreshed token: %w", err)
		}
	}
	return tok, nil
}

func (m *OAuthManager) authorize(ctx context.Context) (*oauth2.Token, error) {
	state := m.newState()
	authURL := m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	answer, err := m.prompter.Prompt(ctx, authURL)
	if err != nil {
		return nil, &snap.AuthError{Op: "prompt", Err: err}
	}
	code, err := parseAuthCode(answer, state)
	if err != nil {
		return nil, &snap.AuthError{Op: "prompt", Err: err}
	}

	tok, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, &snap.AuthError{Op: "exchange", Err: err}
	}
	if err := m.store.Save(tok); err != nil {
		return nil, &snap.AuthError{Op: "save token", Err: err}
	}
	m.logger.Info("authorization complete", "path", m.store.Path())
	return tok, nil
}

// parseAuthCode accepts either a bare code or the redirect URL the browser
// landed on. A URL must carry the expected state.
func parseAuthCode(answer, state string) (string, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("empty authorization code")
	}
	if !strings.Contains(answer, "://") {
		return answer, nil
	}

	u, err := url.Parse(answer)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	if got := q.Get("state"); got != state {
		return "", fmt.Errorf("state mismatch in redirect URL")
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect URL has no code")
	}
	return code, nil
}
