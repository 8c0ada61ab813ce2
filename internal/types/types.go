package types

import (
	"strings"
	"time"
)

// Status is the stage an application has reached.
type Status string

const (
	StatusApplied   Status = "Applied"
	StatusInterview Status = "Interview"
	StatusRejected  Status = "Rejected"
	StatusOffer     Status = "Offer"
	StatusUnknown   Status = "Unknown"
)

// ParseStatus maps a free-form status label back onto the enum.
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APPLIED", "APPLICATION", "SUBMITTED":
		return StatusApplied
	case "INTERVIEW", "OA", "ASSESSMENT":
		return StatusInterview
	case "REJECTED", "DECLINED":
		return StatusRejected
	case "OFFER", "ACCEPTED":
		return StatusOffer
	default:
		return StatusUnknown
	}
}

// Message is the provider-independent shape every Source produces.
// A zero Date means the header was missing or could not be parsed.
type Message struct {
	ID       string
	From     string
	Subject  string
	Date     time.Time
	BodyText string
	BodyHTML string
	Folder   string
}

// ApplicationRecord is one job-application email. It is a value type and is
// never modified after the analyzer returns it.
type ApplicationRecord struct {
	MessageID string
	Company   string
	JobTitle  string
	Date      time.Time // calendar date at midnight, zero when unknown
	Status    Status
	Snippet   string
}

// HasDate reports whether the record carries a date.
func (r ApplicationRecord) HasDate() bool {
	return !r.Date.IsZero()
}

// Query narrows what a Source returns. Zero times leave the range open and a
// zero MaxMessages means no limit.
type Query struct {
	Keywords    []string
	Since       time.Time
	Until       time.Time
	MaxMessages int
}

// Matches applies the query to an already fetched message, for sources that
// cannot search server side.
func (q Query) Matches(m Message) bool {
	if !m.Date.IsZero() {
		if !q.Since.IsZero() && m.Date.Before(q.Since) {
			return false
		}
		if !q.Until.IsZero() && !m.Date.Before(q.Until) {
			return false
		}
	}
	if len(q.Keywords) == 0 {
		return true
	}
	return ContainsAny(m.Subject+"\n"+m.BodyText+"\n"+m.BodyHTML, q.Keywords)
}

// ContainsAny is a case-insensitive substring test against a keyword list.
func ContainsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
