package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/YKarmar/JobTracker/internal/types"
)

// RetryPolicy paces provider calls and retries transient failures with
// exponential backoff. The zero value makes one unpaced attempt.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Limiter    *rate.Limiter
	Logger     zerolog.Logger
}

// NewRetryPolicy builds a policy; requestsPerSecond <= 0 disables pacing.
func NewRetryPolicy(maxRetries int, backoff time.Duration, requestsPerSecond float64, logger zerolog.Logger) RetryPolicy {
	p := RetryPolicy{MaxRetries: maxRetries, Backoff: backoff, Logger: logger}
	if requestsPerSecond > 0 {
		p.Limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return p
}

// Do runs fn until it succeeds, fails permanently, or runs out of retries.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := fn()
		if err == nil || attempt >= p.MaxRetries || !IsTransient(err) {
			return err
		}

		delay := backoffDelay(p.Backoff, attempt)
		p.Logger.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("backoff", delay).Msg("transient provider error, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// maxBackoff caps the wait between two attempts.
const maxBackoff = 5 * time.Minute

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		return maxBackoff
	}
	delay := base << attempt
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// HTTPStatusError is a non-200 reply from a plain HTTP collaborator.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

// Error implements error.
func (e *HTTPStatusError) Error() string {
	return "http " + http.StatusText(e.StatusCode) + ": " + e.Body
}

// IsTransient reports whether retrying err might succeed.
func IsTransient(err error) bool {
	var ae *types.AuthError
	if errors.As(err, &ae) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return transientStatus(gerr.Code) || isRateLimited(gerr)
	}
	var herr *HTTPStatusError
	if errors.As(err, &herr) {
		return transientStatus(herr.StatusCode)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRateLimited(gerr *googleapi.Error) bool {
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return strings.Contains(gerr.Message, "Rate Limit")
}

// classifyGoogleError maps a Google API failure onto the run's error kinds.
func classifyGoogleError(op string, err error) error {
	var ae *types.AuthError
	var re *oauth2.RetrieveError
	if errors.As(err, &ae) || errors.As(err, &re) {
		return &types.AuthError{Op: op, Err: err}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return &types.AuthError{Op: op, Err: err}
		case gerr.Code == http.StatusForbidden && !isRateLimited(gerr):
			return &types.AuthError{Op: op, Err: err}
		}
	}
	return &types.FetchError{Op: op, Err: err}
}
