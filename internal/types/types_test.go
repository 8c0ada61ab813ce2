package types

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"Applied", StatusApplied},
		{" submitted ", StatusApplied},
		{"interview", StatusInterview},
		{"REJECTED", StatusRejected},
		{"Offer", StatusOffer},
		{"", StatusUnknown},
		{"ghosted", StatusUnknown},
	}
	for _, tt := range tests {
		if got := ParseStatus(tt.in); got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueryMatches(t *testing.T) {
	june := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	q := Query{
		Keywords: []string{"Interview"},
		Since:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Until:    time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"keyword in subject", Message{Subject: "Your INTERVIEW slot", Date: june}, true},
		{"keyword in body", Message{BodyText: "schedule an interview", Date: june}, true},
		{"no keyword", Message{Subject: "Newsletter", Date: june}, false},
		{"before range", Message{Subject: "interview", Date: june.AddDate(0, -2, 0)}, false},
		{"at until is excluded", Message{Subject: "interview", Date: q.Until}, false},
		{"undated passes range", Message{Subject: "interview"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := q.Matches(tt.msg); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("run: %w", &FetchError{Op: "list", Err: base})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("errors.As did not find FetchError in %v", err)
	}
	if !errors.Is(err, base) {
		t.Errorf("errors.Is lost the wrapped cause")
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		t.Errorf("FetchError must not match AuthError")
	}
}
