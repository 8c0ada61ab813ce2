package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/emersion/go-mbox"
	"github.com/rs/zerolog"

	"github.com/YKarmar/JobTracker/internal/mailparse"
	"github.com/YKarmar/JobTracker/internal/types"
)

// MboxSource reads a local mbox export, e.g. from Google Takeout. The
// query is applied client side.
type MboxSource struct {
	path   string
	logger zerolog.Logger
}

// NewMboxSource reads the mbox file at path.
func NewMboxSource(path string, logger zerolog.Logger) *MboxSource {
	return &MboxSource{path: path, logger: logger}
}

// Name implements Source.
func (s *MboxSource) Name() string { return "mbox" }

// Close is a no-op; each fetch opens the file itself.
func (s *MboxSource) Close() error { return nil }

// Fetch scans the file in order and yields the messages q matches.
func (s *MboxSource) Fetch(ctx context.Context, q types.Query) iter.Seq2[types.Message, error] {
	return func(yield func(types.Message, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(types.Message{}, &types.FetchError{Op: "open mbox", Err: err})
			return
		}
		defer f.Close()

		base := filepath.Base(s.path)
		r := mbox.NewReader(f)
		count := 0
		for ordinal := 1; ; ordinal++ {
			if err := ctx.Err(); err != nil {
				yield(types.Message{}, &types.FetchError{Op: "read mbox", Err: err})
				return
			}
			mr, err := r.NextMessage()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(types.Message{}, &types.FetchError{Op: "read mbox", Err: err})
				return
			}

			msg, err := mailparse.Parse("", mr)
			if err != nil {
				s.logger.Warn().Err(err).Int("ordinal", ordinal).Msg("skipping unparsable message")
				continue
			}
			if msg.ID == "" {
				msg.ID = fmt.Sprintf("%s#%d", base, ordinal)
			}
			if !q.Matches(msg) {
				continue
			}

			count++
			if !yield(msg, nil) {
				return
			}
			if q.MaxMessages > 0 && count >= q.MaxMessages {
				return
			}
		}
	}
}
