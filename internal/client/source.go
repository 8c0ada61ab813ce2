// Package client fetches candidate messages from a mail provider.
package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/YKarmar/JobTracker/internal/auth"
	"github.com/YKarmar/JobTracker/internal/config"
	"github.com/YKarmar/JobTracker/internal/types"
)

// Source yields messages matching a query. The sequence ends at the first
// error, which is a *types.AuthError or *types.FetchError. A Source is
// opened once per run and closed when the run ends.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q types.Query) iter.Seq2[types.Message, error]
	Close() error
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[types.Message, error]) ([]types.Message, error) {
	var out []types.Message
	for msg, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// QueryFromConfig builds the fetch query from the fetch and extract sections.
func QueryFromConfig(cfg *config.Config, keywords []string) types.Query {
	q := types.Query{
		Keywords:    keywords,
		MaxMessages: cfg.Fetch.MaxEmails,
		Since:       config.ParseDateLoose(cfg.Fetch.Start, time.Time{}),
		Until:       config.ParseDateLoose(cfg.Fetch.End, time.Time{}),
	}
	// A bare end date includes that whole day.
	if !q.Until.IsZero() && len(strings.TrimSpace(cfg.Fetch.End)) == len("2006-01-02") {
		q.Until = q.Until.AddDate(0, 0, 1)
	}
	return q
}

// Open connects the source selected by source.provider. prompt may be nil
// for non-interactive runs.
func Open(ctx context.Context, cfg *config.Config, prompt *auth.Prompt, logger zerolog.Logger) (Source, error) {
	policy := NewRetryPolicy(cfg.Fetch.MaxRetries, cfg.Fetch.RetryBackoff, cfg.Fetch.RequestsPerSecond, logger)
	logger = logger.With().Str("provider", cfg.Source.Provider).Logger()

	switch cfg.Source.Provider {
	case config.ProviderGmail:
		ts, err := googleTokenSource(ctx, cfg, prompt, logger, auth.GmailScopes...)
		if err != nil {
			return nil, err
		}
		return NewGmailSource(ctx, cfg.Gmail.User, policy, logger, option.WithTokenSource(ts))

	case config.ProviderIMAP:
		opts := IMAPOptions{
			Addr:     cfg.IMAP.Host,
			UseTLS:   cfg.IMAP.UseTLS,
			Username: cfg.IMAP.Email,
			Folders:  cfg.IMAP.Folders,
		}
		if cfg.IMAP.Auth == "oauth" {
			ts, err := googleTokenSource(ctx, cfg, prompt, logger, auth.IMAPScope)
			if err != nil {
				return nil, err
			}
			opts.TokenSource = ts
		} else {
			pw, err := auth.IMAPPassword(cfg.IMAP.Password, cfg.IMAP.Email, cfg.IMAP.Host)
			if err != nil {
				return nil, err
			}
			opts.Password = pw
		}
		return DialIMAP(ctx, opts, policy, logger)

	case config.ProviderMbox:
		return NewMboxSource(cfg.Mbox.Path, logger), nil

	case config.ProviderMCP:
		return NewMCPEmailClient(MCPEmailConfig{
			MCPEndpoint: cfg.MCP.Endpoint,
			APIKey:      cfg.MCP.APIKey,
		}, policy, logger), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Source.Provider)
}

func googleTokenSource(ctx context.Context, cfg *config.Config, prompt *auth.Prompt, logger zerolog.Logger, scopes ...string) (oauth2.TokenSource, error) {
	oauthCfg, err := auth.LoadConfig(cfg.Gmail.CredentialsFile, scopes...)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Error().Str("path", cfg.Gmail.CredentialsFile).Msg("OAuth client file not found; download it from the Google Cloud console")
		}
		return nil, err
	}
	return auth.TokenSource(ctx, oauthCfg, auth.TokenStore{Path: cfg.Gmail.TokenFile}, prompt, logger)
}
