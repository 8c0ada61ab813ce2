package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"github.com/YKarmar/JobTracker/internal/types"
)

func tokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") == "authorization_code" && r.Form.Get("code") != "the-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"`+accessToken+`","refresh_token":"r1","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example/auth", TokenURL: tokenURL},
		Scopes:       GmailScopes,
	}
}

func TestTokenSourceWithoutCacheOrPrompt(t *testing.T) {
	store := TokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	_, err := TokenSource(context.Background(), testConfig("http://unused"), store, nil, zerolog.Nop())

	var ae *types.AuthError
	if !errors.As(err, &ae) || !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want AuthError wrapping ErrNoToken", err)
	}
}

func TestTokenSourceInteractiveExchange(t *testing.T) {
	srv := tokenServer(t, "fresh")
	store := TokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	var out strings.Builder
	prompt := &Prompt{In: strings.NewReader("the-code\n"), Out: &out}

	ts, err := TokenSource(context.Background(), testConfig(srv.URL), store, prompt, zerolog.Nop())
	if err != nil {
		t.Fatalf("TokenSource: %v", err)
	}
	if !strings.Contains(out.String(), "https://accounts.example/auth") {
		t.Errorf("prompt did not show the consent URL: %q", out.String())
	}
	tok, err := ts.Token()
	if err != nil || tok.AccessToken != "fresh" {
		t.Fatalf("Token = %v, %v", tok, err)
	}
	cached, err := store.Load()
	if err != nil || cached.AccessToken != "fresh" {
		t.Fatalf("cached token = %v, %v", cached, err)
	}
}

func TestTokenSourceBadCode(t *testing.T) {
	srv := tokenServer(t, "fresh")
	store := TokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	prompt := &Prompt{In: strings.NewReader("wrong\n"), Out: io.Discard}

	_, err := TokenSource(context.Background(), testConfig(srv.URL), store, prompt, zerolog.Nop())
	var ae *types.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestTokenSourceSavesRefreshedToken(t *testing.T) {
	srv := tokenServer(t, "refreshed")
	store := TokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	expired := &oauth2.Token{AccessToken: "old", RefreshToken: "r1", Expiry: time.Now().Add(-time.Hour)}
	if err := store.Save(expired); err != nil {
		t.Fatal(err)
	}

	ts, err := TokenSource(context.Background(), testConfig(srv.URL), store, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("TokenSource: %v", err)
	}
	tok, err := ts.Token()
	if err != nil || tok.AccessToken != "refreshed" {
		t.Fatalf("Token = %v, %v", tok, err)
	}
	cached, _ := store.Load()
	if cached.AccessToken != "refreshed" {
		t.Errorf("refreshed token not written back, got %q", cached.AccessToken)
	}
}

func TestTokenSourceRefreshFailureIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	store := TokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	store.Save(&oauth2.Token{AccessToken: "old", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour)})

	ts, err := TokenSource(context.Background(), testConfig(srv.URL), store, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("TokenSource: %v", err)
	}
	_, err = ts.Token()
	var ae *types.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestIMAPPasswordResolution(t *testing.T) {
	keyring.MockInit()
	t.Setenv("EMAIL_PASSWORD", "")
	t.Setenv("EMAIL_APP_PASSWORD", "")

	if pw, err := IMAPPassword("in-config", "me@example.com", "imap.example.com:993"); err != nil || pw != "in-config" {
		t.Errorf("configured password: %q, %v", pw, err)
	}

	_, err := IMAPPassword("${IMAP_PASSWORD}", "me@example.com", "imap.example.com:993")
	var ae *types.AuthError
	if !errors.As(err, &ae) {
		t.Errorf("unresolved placeholder should be an AuthError, got %v", err)
	}

	if err := StoreIMAPPassword("me@example.com", "imap.example.com:993", "from-keychain"); err != nil {
		t.Fatalf("StoreIMAPPassword: %v", err)
	}
	if pw, err := IMAPPassword("", "me@example.com", "imap.example.com:993"); err != nil || pw != "from-keychain" {
		t.Errorf("keychain password: %q, %v", pw, err)
	}

	t.Setenv("EMAIL_APP_PASSWORD", "from-env")
	if pw, err := IMAPPassword("", "me@example.com", "imap.example.com:993"); err != nil || pw != "from-env" {
		t.Errorf("env password: %q, %v", pw, err)
	}
}
