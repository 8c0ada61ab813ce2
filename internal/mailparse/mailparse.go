// Package mailparse turns raw RFC 822 messages into types.Message.
package mailparse

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/YKarmar/JobTracker/internal/types"
)

const maxPartSize = 6 << 20

// Parse reads one message. id is used as the message ID when non-empty,
// otherwise the Message-Id header is used.
func Parse(id string, r io.Reader) (types.Message, error) {
	msg := types.Message{ID: id}

	mr, err := gomail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return msg, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	if subject, err := h.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	} else {
		msg.Subject = strings.TrimSpace(h.Get("Subject"))
	}
	msg.From = formatFrom(h)
	msg.Date = ParseDate(h.Get("Date"))
	if msg.ID == "" {
		if mid, err := h.MessageID(); err == nil && mid != "" {
			msg.ID = mid
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			// A broken part still leaves the headers usable.
			break
		}

		ih, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := ih.ContentType()
		body, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
			msg.BodyText = appendBody(msg.BodyText, string(body))
		case strings.HasPrefix(mediaType, "text/html"):
			msg.BodyHTML = appendBody(msg.BodyHTML, string(body))
		}
	}

	return msg, nil
}

// ParseBytes is Parse over an in-memory message.
func ParseBytes(id string, raw []byte) (types.Message, error) {
	return Parse(id, bytes.NewReader(raw))
}

func appendBody(cur, next string) string {
	if cur == "" {
		return next
	}
	return cur + "\n" + next
}

func formatFrom(h gomail.Header) string {
	list, err := h.AddressList("From")
	if err != nil || len(list) == 0 {
		return strings.TrimSpace(h.Get("From"))
	}
	a := list[0]
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
}

// ParseDate accepts the Date header forms seen in the wild and returns the
// zero time when none of them fit.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t
		}
	}
	// Trailing comment such as "(UTC)" that net/mail rejected.
	if i := strings.LastIndex(s, " ("); i > 0 {
		return ParseDate(s[:i])
	}
	return time.Time{}
}

// HTMLToText strips markup and collapses whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return CollapseSpace(html)
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br, p, div, li, tr, td, th, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return CollapseSpace(doc.Text())
}

// PlainText returns the best plain rendition of a message body.
func PlainText(m types.Message) string {
	if strings.TrimSpace(m.BodyText) != "" {
		return CollapseSpace(m.BodyText)
	}
	if m.BodyHTML != "" {
		return HTMLToText(m.BodyHTML)
	}
	return ""
}

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
