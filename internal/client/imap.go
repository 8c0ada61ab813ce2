package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"iter"
	"net"
	"slices"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/YKarmar/JobTracker/internal/mailparse"
	"github.com/YKarmar/JobTracker/internal/types"
)

// IMAPOptions configures an IMAP connection. Exactly one of Password and
// TokenSource is used; TokenSource wins when both are set.
type IMAPOptions struct {
	Addr        string
	UseTLS      bool
	Username    string
	Password    string
	TokenSource oauth2.TokenSource
	Folders     []string
}

// IMAPSource searches one or more folders of an IMAP account. The connection
// carries one command at a time, so concurrent fetches run one after another.
type IMAPSource struct {
	mu      sync.Mutex
	c       *imapclient.Client
	folders []string
	logger  zerolog.Logger
}

// DialIMAP connects and logs in.
func DialIMAP(ctx context.Context, opts IMAPOptions, policy RetryPolicy, logger zerolog.Logger) (*IMAPSource, error) {
	var c *imapclient.Client
	err := policy.Do(ctx, "dial imap", func() error {
		var err error
		if opts.UseTLS {
			host, _, splitErr := net.SplitHostPort(opts.Addr)
			if splitErr != nil {
				host = opts.Addr
			}
			c, err = imapclient.DialTLS(opts.Addr, &tls.Config{ServerName: host})
		} else {
			c, err = imapclient.Dial(opts.Addr)
		}
		return err
	})
	if err != nil {
		return nil, &types.FetchError{Op: "connect to " + opts.Addr, Err: err}
	}

	if err := login(c, opts); err != nil {
		c.Logout()
		return nil, err
	}
	logger.Info().Str("addr", opts.Addr).Str("user", opts.Username).Msg("IMAP login succeeded")

	folders := opts.Folders
	if len(folders) == 0 {
		folders = []string{"INBOX"}
	}
	return &IMAPSource{c: c, folders: folders, logger: logger}, nil
}

func login(c *imapclient.Client, opts IMAPOptions) error {
	if opts.TokenSource != nil {
		tok, err := opts.TokenSource.Token()
		if err != nil {
			return &types.AuthError{Op: "imap oauth token", Err: err}
		}
		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: opts.Username,
			Token:    tok.AccessToken,
		})
		if err := c.Authenticate(saslClient); err != nil {
			return &types.AuthError{Op: "imap authenticate", Err: err}
		}
		return nil
	}
	if err := c.Login(opts.Username, opts.Password); err != nil {
		return &types.AuthError{Op: "imap login", Err: err}
	}
	return nil
}

// Name implements Source.
func (s *IMAPSource) Name() string { return "imap" }

// Close logs out once any running fetch has finished.
func (s *IMAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Logout()
}

// SearchCriteria matches any keyword in headers or body within the date range.
func SearchCriteria(q types.Query) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.Since = q.Since
	criteria.Before = q.Until

	var kws []string
	for _, kw := range q.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			kws = append(kws, kw)
		}
	}
	if len(kws) == 0 {
		return criteria
	}
	if tree := keywordTree(kws); tree != nil {
		criteria.Text = tree.Text
		criteria.Or = tree.Or
	}
	return criteria
}

// IMAP OR takes exactly two keys, so n keywords nest into a right-leaning tree.
func keywordTree(kws []string) *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	if len(kws) == 1 {
		c.Text = []string{kws[0]}
		return c
	}
	left := imap.NewSearchCriteria()
	left.Text = []string{kws[0]}
	c.Or = [][2]*imap.SearchCriteria{{left, keywordTree(kws[1:])}}
	return c
}

// Fetch searches every configured folder, newest first. The connection is
// held until iteration ends, so the loop body must not fetch from s again.
func (s *IMAPSource) Fetch(ctx context.Context, q types.Query) iter.Seq2[types.Message, error] {
	return func(yield func(types.Message, error) bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		criteria := SearchCriteria(q)
		count := 0
		for _, folder := range s.folders {
			if err := ctx.Err(); err != nil {
				yield(types.Message{}, &types.FetchError{Op: "imap fetch", Err: err})
				return
			}
			limit := 0
			if q.MaxMessages > 0 {
				limit = q.MaxMessages - count
				if limit <= 0 {
					return
				}
			}
			n, ok := s.fetchFolder(folder, criteria, limit, yield)
			count += n
			if !ok {
				return
			}
		}
	}
}

// fetchFolder yields matching messages of one folder, newest first. It
// reports how many were yielded and whether iteration should continue.
func (s *IMAPSource) fetchFolder(folder string, criteria *imap.SearchCriteria, limit int, yield func(types.Message, error) bool) (int, bool) {
	logger := s.logger.With().Str("folder", folder).Logger()

	status, err := s.c.Select(folder, true)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot select folder, skipping")
		return 0, true
	}
	if status.Messages == 0 {
		return 0, true
	}

	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return 0, yield(types.Message{}, &types.FetchError{Op: "imap search " + folder, Err: err})
	}
	if len(uids) == 0 {
		return 0, true
	}
	slices.Sort(uids)
	slices.Reverse(uids)
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}
	logger.Debug().Int("matches", len(uids)).Msg("searched folder")

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqset, items, messages)
	}()

	yielded := 0
	stopped := false
	for raw := range messages {
		// The channel must be drained even after the consumer stops.
		if stopped {
			continue
		}
		msg := s.convert(raw, folder, section, logger)
		yielded++
		if !yield(msg, nil) {
			stopped = true
		}
	}
	if err := <-done; err != nil && !stopped {
		return yielded, yield(types.Message{}, &types.FetchError{Op: "imap fetch " + folder, Err: err})
	}
	return yielded, !stopped
}

func (s *IMAPSource) convert(raw *imap.Message, folder string, section *imap.BodySectionName, logger zerolog.Logger) types.Message {
	var msg types.Message
	if body := raw.GetBody(section); body != nil {
		parsed, err := mailparse.Parse("", body)
		if err != nil {
			logger.Warn().Err(err).Uint32("uid", raw.Uid).Msg("unparsable message, using envelope")
		} else {
			msg = parsed
		}
	}

	if env := raw.Envelope; env != nil {
		if msg.Subject == "" {
			msg.Subject = env.Subject
		}
		if msg.From == "" && len(env.From) > 0 {
			msg.From = env.From[0].Address()
		}
		if msg.Date.IsZero() {
			msg.Date = env.Date
		}
		if msg.ID == "" {
			msg.ID = strings.Trim(env.MessageId, "<>")
		}
	}
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("%s/%d", folder, raw.Uid)
	}
	msg.Folder = folder
	return msg
}
