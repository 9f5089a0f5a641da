package reddit

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Reason classifies a fetch failure so callers can branch on an
// enumerated value instead of matching error text.
type Reason string

const (
	ReasonForbidden   Reason = "forbidden"
	ReasonNotFound    Reason = "not_found"
	ReasonRateLimited Reason = "rate_limited"
	ReasonTimeout     Reason = "timeout"
	ReasonUnknown     Reason = "unknown"
)

// Error is a typed fetch failure for one subreddit.
type Error struct {
	Reason    Reason
	Subreddit string
	Status    int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reddit: %s: %s (%s)", e.Subreddit, e.Reason, e.Err)
	}
	return fmt.Sprintf("reddit: %s: %s (status %d)", e.Subreddit, e.Reason, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from an error chain, returning
// ReasonUnknown when no typed reddit error is present.
func ReasonOf(err error) Reason {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonUnknown
}

// IsForbidden reports whether err represents a private or banned
// subreddit, which the pipelines record as an all-null metadata row
// rather than a hard failure.
func IsForbidden(err error) bool {
	return ReasonOf(err) == ReasonForbidden
}

func statusReason(status int) Reason {
	switch status {
	case 403:
		return ReasonForbidden
	case 404:
		return ReasonNotFound
	case 429:
		return ReasonRateLimited
	default:
		return ReasonUnknown
	}
}
