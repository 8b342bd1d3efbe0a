package credential

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"snapsync/internal/encryption"
	"snapsync/internal/snap"
)

// tokenServer fakes the provider's token endpoint.
type tokenServer struct {
	*httptest.Server
	exchanges atomic.Int32
	refreshes atomic.Int32
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			ts.exchanges.Add(1)
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "at-new",
				"refresh_token": "rt-valid",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		case "refresh_token":
			ts.refreshes.Add(1)
			if r.PostForm.Get("refresh_token") != "rt-valid" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "at-refreshed",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		default:
			http.Error(w, "unsupported grant", http.StatusBadRequest)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost",
		Scopes:       []string{"https://www.googleapis.com/auth/drive"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/auth",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// redirectPrompter answers like a browser redirect carrying code and the
// state from the consent URL.
func redirectPrompter(code string, calls *int) PromptFunc {
	return func(_ context.Context, authURL string) (string, error) {
		*calls++
		u, err := url.Parse(authURL)
		if err != nil {
			return "", err
		}
		state := u.Query().Get("state")
		return "http://localhost/?state=" + url.QueryEscape(state) + "&code=" + code, nil
	}
}

func failPrompter(t *testing.T) PromptFunc {
	return func(context.Context, string) (string, error) {
		t.Error("prompter called unexpectedly")
		return "", errors.New("unexpected prompt")
	}
}

func newManager(t *testing.T, ts *tokenServer, p Prompter) (*OAuthManager, *TokenStore) {
	t.Helper()
	store := NewTokenStore(filepath.Join(t.TempDir(), "tokens", "proj.json"), nil)
	return NewOAuthManager(ts.config(), store, p, snap.NewNopLogger()), store
}

func TestOAuthManager_Acquire_FirstRunAuthorizes(t *testing.T) {
	ts := newTokenServer(t)
	calls := 0
	m, store := newManager(t, ts, redirectPrompter("good-code", &calls))

	cred, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if cred.Provider != ProviderOAuth || cred.AccessToken != "at-new" || cred.RefreshToken != "rt-valid" {
		t.Errorf("Acquire() = %+v", cred)
	}
	if calls != 1 || ts.exchanges.Load() != 1 {
		t.Errorf("prompts = %d, exchanges = %d; want 1, 1", calls, ts.exchanges.Load())
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("token not persisted: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}
	saved, err := store.Load()
	if err != nil || saved.AccessToken != "at-new" {
		t.Errorf("Load() = %+v, %v; want at-new", saved, err)
	}
}

func TestOAuthManager_Acquire_ReusesValidToken(t *testing.T) {
	ts := newTokenServer(t)
	m, store := newManager(t, ts, failPrompter(t))
	if err := store.Save(&oauth2.Token{
		AccessToken:  "at-stored",
		RefreshToken: "rt-valid",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	cred, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if cred.AccessToken != "at-stored" {
		t.Errorf("AccessToken = %q, want at-stored", cred.AccessToken)
	}
	if ts.refreshes.Load() != 0 || ts.exchanges.Load() != 0 {
		t.Errorf("unexpected provider calls: refreshes=%d exchanges=%d", ts.refreshes.Load(), ts.exchanges.Load())
	}
}

func TestOAuthManager_Acquire_RefreshesExpiredToken(t *testing.T) {
	ts := newTokenServer(t)
	m, store := newManager(t, ts, failPrompter(t))
	if err := store.Save(&oauth2.Token{
		AccessToken:  "at-old",
		RefreshToken: "rt-valid",
		Expiry:       time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	cred, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if cred.AccessToken != "at-refreshed" {
		t.Errorf("AccessToken = %q, want at-refreshed", cred.AccessToken)
	}
	saved, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if saved.AccessToken != "at-refreshed" {
		t.Errorf("persisted AccessToken = %q, want at-refreshed", saved.AccessToken)
	}
	if saved.RefreshToken != "rt-valid" {
		t.Errorf("persisted RefreshToken = %q, want the original refresh token kept", saved.RefreshToken)
	}
}

func TestOAuthManager_Acquire_RejectedTokenReauthorizes(t *testing.T) {
	ts := newTokenServer(t)
	calls := 0
	m, store := newManager(t, ts, redirectPrompter("good-code", &calls))
	if err := store.Save(&oauth2.Token{
		AccessToken:  "at-old",
		RefreshToken: "rt-revoked",
		Expiry:       time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	cred, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if cred.AccessToken != "at-new" || calls != 1 {
		t.Errorf("AccessToken = %q, prompts = %d; want at-new after one prompt", cred.AccessToken, calls)
	}
}

func TestOAuthManager_Acquire_Errors(t *testing.T) {
	tests := []struct {
		name     string
		prompter PromptFunc
		wantIs   error
		wantOp   string
	}{
		{
			name: "not interactive",
			prompter: func(context.Context, string) (string, error) {
				return "", snap.ErrNotInteractive
			},
			wantIs: snap.ErrNotInteractive,
			wantOp: "prompt",
		},
		{
			name: "state mismatch",
			prompter: func(context.Context, string) (string, error) {
				return "http://localhost/?state=forged&code=good-code", nil
			},
			wantOp: "prompt",
		},
		{
			name: "bad code",
			prompter: func(context.Context, string) (string, error) {
				return "bad-code", nil
			},
			wantOp: "exchange",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t)
			m, store := newManager(t, ts, tt.prompter)

			_, err := m.Acquire(context.Background())
			var ae *snap.AuthError
			if !errors.As(err, &ae) {
				t.Fatalf("Acquire() error = %v, want *snap.AuthError", err)
			}
			if ae.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", ae.Op, tt.wantOp)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("Acquire() error = %v, want %v", err, tt.wantIs)
			}
			if _, statErr := os.Stat(store.Path()); !os.IsNotExist(statErr) {
				t.Errorf("token file written on failure: %v", statErr)
			}
		})
	}
}

func TestOAuthManager_Acquire_InvalidTokenFileReauthorizes(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{not json"},
		{name: "empty file", content: ""},
		{name: "no tokens", content: `{"token_type":"Bearer"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t)
			calls := 0
			m, store := newManager(t, ts, redirectPrompter("good-code", &calls))
			if err := os.MkdirAll(filepath.Dir(store.Path()), 0700); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(store.Path(), []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			cred, err := m.Acquire(context.Background())
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if cred.AccessToken != "at-new" || calls != 1 {
				t.Errorf("AccessToken = %q, prompts = %d; want at-new after one prompt", cred.AccessToken, calls)
			}
			saved, err := store.Load()
			if err != nil || saved.AccessToken != "at-new" {
				t.Errorf("Load() = %+v, %v; want replaced token at-new", saved, err)
			}
		})
	}
}

func TestOAuthManager_Acquire_UnopenableSealedToken(t *testing.T) {
	ts := newTokenServer(t)
	dir := t.TempDir()
	sealer := encryption.NewAgeSealer(filepath.Join(dir, "token.key"))
	if _, err := sealer.GenerateIdentity(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "proj.json")
	if err := NewTokenStore(path, sealer).Save(&oauth2.Token{AccessToken: "at-old", RefreshToken: "rt-valid"}); err != nil {
		t.Fatal(err)
	}

	other := encryption.NewAgeSealer(filepath.Join(dir, "other.key"))
	if _, err := other.GenerateIdentity(); err != nil {
		t.Fatal(err)
	}

	// A wrong identity is a key problem; the stored token is kept for the
	// operator to recover.
	m := NewOAuthManager(ts.config(), NewTokenStore(path, other), failPrompter(t), snap.NewNopLogger())
	_, err := m.Acquire(context.Background())
	var ae *snap.AuthError
	if !errors.As(err, &ae) || ae.Op != "load token" {
		t.Errorf("Acquire() error = %v, want AuthError with op load token", err)
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Errorf("Acquire() error = %v, should not be ErrInvalidToken", err)
	}
	if _, err := NewTokenStore(path, sealer).Load(); err != nil {
		t.Errorf("sealed token no longer loads with its identity: %v", err)
	}
}

func TestOAuthManager_ConsentURL(t *testing.T) {
	ts := newTokenServer(t)
	var shown string
	m, _ := newManager(t, ts, PromptFunc(func(_ context.Context, authURL string) (string, error) {
		shown = authURL
		return "", snap.ErrNotInteractive
	}))
	m.newState = func() string { return "fixed-state" }

	m.Acquire(context.Background())

	u, err := url.Parse(shown)
	if err != nil {
		t.Fatalf("consent URL %q: %v", shown, err)
	}
	q := u.Query()
	if !strings.HasPrefix(shown, ts.URL+"/auth?") {
		t.Errorf("consent URL = %q, want provider auth endpoint", shown)
	}
	if q.Get("state") != "fixed-state" || q.Get("access_type") != "offline" || q.Get("client_id") != "client-id" {
		t.Errorf("consent URL query = %v", q)
	}
}

func TestParseAuthCode(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		want    string
		wantErr bool
	}{
		{name: "bare code", answer: "  4/abc  \n", want: "4/abc"},
		{name: "redirect URL", answer: "http://localhost/?state=s1&code=4%2Fabc&scope=x", want: "4/abc"},
		{name: "empty", answer: "   ", wantErr: true},
		{name: "wrong state", answer: "http://localhost/?state=s2&code=c", wantErr: true},
		{name: "missing code", answer: "http://localhost/?state=s1", wantErr: true},
		{name: "denied", answer: "http://localhost/?state=s1&error=access_denied", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAuthCode(tt.answer, "s1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAuthCode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseAuthCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadGoogleConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client_secret.json")
	secret := `{"installed":{"client_id":"cid.apps.googleusercontent.com","client_secret":"shh",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["http://localhost"]}}`
	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGoogleConfig(path)
	if err != nil {
		t.Fatalf("LoadGoogleConfig() error = %v", err)
	}
	if cfg.ClientID != "cid.apps.googleusercontent.com" || cfg.RedirectURL != "http://localhost" {
		t.Errorf("LoadGoogleConfig() = %+v", cfg)
	}
	if len(cfg.Scopes) != 1 || !strings.HasSuffix(cfg.Scopes[0], "/auth/drive") {
		t.Errorf("Scopes = %v, want drive scope", cfg.Scopes)
	}

	if _, err := LoadGoogleConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("LoadGoogleConfig() expected error for missing file")
	}
}

func TestTokenStore_Sealed(t *testing.T) {
	dir := t.TempDir()
	sealer := encryption.NewAgeSealer(filepath.Join(dir, "token.key"))
	if _, err := sealer.GenerateIdentity(); err != nil {
		t.Fatal(err)
	}
	store := NewTokenStore(filepath.Join(dir, "proj.json"), sealer)

	want := &oauth2.Token{AccessToken: "secret-access", RefreshToken: "secret-refresh", TokenType: "Bearer"}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "secret-refresh") {
		t.Error("token file holds the refresh token in clear text")
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	plain := NewTokenStore(store.Path(), nil)
	if _, err := plain.Load(); err == nil {
		t.Error("Load() of a sealed file without the identity should fail")
	}
}

func TestTokenStore_LoadMissing(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "none.json"), nil)
	tok, err := store.Load()
	if err != nil || tok != nil {
		t.Errorf("Load() = %v, %v; want nil, nil", tok, err)
	}
}

func TestTokenConversion(t *testing.T) {
	expiry := time.Date(2024, 1, 15, 11, 30, 0, 0, time.UTC)
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry}

	cred := RemoteFromToken(tok)
	back := TokenFromRemote(cred)
	if back.AccessToken != "a" || back.RefreshToken != "r" || back.TokenType != "Bearer" || !back.Expiry.Equal(expiry) {
		t.Errorf("TokenFromRemote(RemoteFromToken()) = %+v", back)
	}
}
