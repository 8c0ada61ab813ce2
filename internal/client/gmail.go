package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/YKarmar/JobTracker/internal/mailparse"
	"github.com/YKarmar/JobTracker/internal/types"
)

const gmailPageSize = 100

// GmailSource searches a mailbox through the Gmail API.
type GmailSource struct {
	srv    *gmail.Service
	user   string
	policy RetryPolicy
	logger zerolog.Logger
}

// NewGmailSource wraps an authenticated Gmail service. opts must carry the
// credentials, e.g. option.WithTokenSource.
func NewGmailSource(ctx context.Context, user string, policy RetryPolicy, logger zerolog.Logger, opts ...option.ClientOption) (*GmailSource, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, &types.FetchError{Op: "create Gmail service", Err: err}
	}
	if user == "" {
		user = "me"
	}
	return &GmailSource{srv: srv, user: user, policy: policy, logger: logger}, nil
}

// Name implements Source.
func (g *GmailSource) Name() string { return "gmail" }

// Close implements Source.
func (g *GmailSource) Close() error { return nil }

// BuildGmailQuery renders a query in Gmail search syntax: any keyword,
// after the start date and before the end date.
func BuildGmailQuery(q types.Query) string {
	var parts []string
	var terms []string
	for _, kw := range q.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.ContainsAny(kw, " \t") {
			kw = `"` + strings.ReplaceAll(kw, `"`, "") + `"`
		}
		terms = append(terms, kw)
	}
	switch len(terms) {
	case 0:
	case 1:
		parts = append(parts, terms[0])
	default:
		parts = append(parts, "{"+strings.Join(terms, " ")+"}")
	}
	if !q.Since.IsZero() {
		parts = append(parts, "after:"+q.Since.Format("2006/01/02"))
	}
	if !q.Until.IsZero() {
		parts = append(parts, "before:"+q.Until.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

// Fetch pages through the search results and downloads each message.
func (g *GmailSource) Fetch(ctx context.Context, q types.Query) iter.Seq2[types.Message, error] {
	return func(yield func(types.Message, error) bool) {
		query := BuildGmailQuery(q)
		g.logger.Info().Str("query", query).Int("max", q.MaxMessages).Msg("searching Gmail")

		pageToken := ""
		count := 0
		for {
			pageSize := int64(gmailPageSize)
			if q.MaxMessages > 0 {
				pageSize = int64(min(gmailPageSize, q.MaxMessages-count))
			}
			call := g.srv.Users.Messages.List(g.user).Q(query).MaxResults(pageSize).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			var resp *gmail.ListMessagesResponse
			err := g.policy.Do(ctx, "list messages", func() error {
				var err error
				resp, err = call.Do()
				return err
			})
			if err != nil {
				yield(types.Message{}, classifyGoogleError("list messages", err))
				return
			}

			for _, ref := range resp.Messages {
				if q.MaxMessages > 0 && count >= q.MaxMessages {
					return
				}
				msg, err := g.get(ctx, ref.Id)
				if err != nil {
					yield(types.Message{}, err)
					return
				}
				count++
				if !yield(msg, nil) {
					return
				}
			}

			if resp.NextPageToken == "" || (q.MaxMessages > 0 && count >= q.MaxMessages) {
				return
			}
			pageToken = resp.NextPageToken
		}
	}
}

func (g *GmailSource) get(ctx context.Context, id string) (types.Message, error) {
	var raw *gmail.Message
	err := g.policy.Do(ctx, "get message", func() error {
		var err error
		raw, err = g.srv.Users.Messages.Get(g.user, id).Format("raw").Context(ctx).Do()
		return err
	})
	if err != nil {
		return types.Message{}, classifyGoogleError("get message "+id, err)
	}

	data, err := decodeRaw(raw.Raw)
	if err != nil {
		g.logger.Warn().Err(err).Str("id", id).Msg("undecodable raw message, using snippet")
		return types.Message{ID: id, BodyText: raw.Snippet}, nil
	}
	msg, err := mailparse.ParseBytes(id, data)
	if err != nil {
		g.logger.Warn().Err(err).Str("id", id).Msg("unparsable message, using snippet")
		return types.Message{ID: id, BodyText: raw.Snippet}, nil
	}
	if msg.BodyText == "" && msg.BodyHTML == "" {
		msg.BodyText = raw.Snippet
	}
	return msg, nil
}

// Gmail returns raw messages as URL-safe base64, with or without padding.
func decodeRaw(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode raw message: %w", err)
	}
	return b, nil
}
