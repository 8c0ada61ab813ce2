// Package auth obtains credentials for the mail providers: a Google OAuth2
// token cached on disk, or an IMAP password from the environment or the OS
// keychain.
package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/YKarmar/JobTracker/internal/types"
)

// GmailScopes is what the tracker asks for: read-only mail access.
var GmailScopes = []string{gmail.GmailReadonlyScope}

// IMAPScope grants IMAP access for OAUTHBEARER logins.
const IMAPScope = "https://mail.google.com/"

// ErrNoToken means no cached token exists and no interactive prompt is
// available.
var ErrNoToken = errors.New("no cached token")

// Prompt is the terminal used for the one-time consent step.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// LoadConfig reads an OAuth client secrets file (credentials.json).
func LoadConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, &types.AuthError{Op: "read client secret file", Err: err}
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, &types.AuthError{Op: "parse client secret file", Err: err}
	}
	return cfg, nil
}

// TokenStore persists a token as JSON.
type TokenStore struct {
	Path string
}

// Load reads the cached token.
func (s TokenStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return tok, nil
}

// Save writes tok readable only by the current user.
func (s TokenStore) Save(tok *oauth2.Token) error {
	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("save oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// TokenSource returns a token source backed by the cached token. Without a
// cached token it runs the consent flow on prompt, or fails with an
// AuthError when prompt is nil. Refreshed tokens are written back.
func TokenSource(ctx context.Context, cfg *oauth2.Config, store TokenStore, prompt *Prompt, logger zerolog.Logger) (oauth2.TokenSource, error) {
	tok, err := store.Load()
	if err != nil {
		if prompt == nil {
			return nil, &types.AuthError{Op: "load token " + store.Path, Err: ErrNoToken}
		}
		tok, err = tokenFromWeb(ctx, cfg, prompt)
		if err != nil {
			return nil, &types.AuthError{Op: "authorize", Err: err}
		}
		if err := store.Save(tok); err != nil {
			return nil, &types.AuthError{Op: "cache token", Err: err}
		}
		logger.Info().Str("path", store.Path).Msg("saved oauth token")
	}

	return &savingTokenSource{
		base:   cfg.TokenSource(ctx, tok),
		store:  store,
		last:   tok.AccessToken,
		logger: logger,
	}, nil
}

func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, prompt *Prompt) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(prompt.Out, "Go to the following link in your browser then type the "+
		"authorization code:\n%v\n", authURL)

	code, err := bufio.NewReader(prompt.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && code != "") {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty authorization code")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// savingTokenSource writes every newly refreshed token to the store and
// reports refresh failures as AuthError.
type savingTokenSource struct {
	base   oauth2.TokenSource
	store  TokenStore
	logger zerolog.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, &types.AuthError{Op: "refresh token", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(tok); err != nil {
			s.logger.Warn().Err(err).Msg("could not cache refreshed token")
		}
	}
	return tok, nil
}
