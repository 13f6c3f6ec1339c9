package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Reason classifies why a link lookup failed.
type Reason string

const (
	// ReasonUnreachable covers transport failures (DNS, refused connections, resets).
	ReasonUnreachable Reason = "unreachable"

	// ReasonBadResponse covers non-2xx statuses and empty or unreadable bodies.
	ReasonBadResponse Reason = "bad_response"

	// ReasonTimeout is reported when a deadline fired before the lookup completed.
	ReasonTimeout Reason = "timeout"

	// ReasonCancelled is reported when the caller cancelled the lookup.
	ReasonCancelled Reason = "cancelled"

	// ReasonInvalidID is reported for identifiers the service can never resolve.
	ReasonInvalidID Reason = "invalid_id"
)

// ErrEmptyLink is wrapped when the service answered 2xx with an empty body.
var ErrEmptyLink = errors.New("empty link in response")

// Error is a failed lookup for one user identifier.
type Error struct {
	ID         int64
	Reason     Reason
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("lookup user %d: %s", e.ID, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from err.
// Errors that did not come from this package are classified by their
// context state, falling back to ReasonUnreachable.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var lookupErr *Error
	if errors.As(err, &lookupErr) {
		return lookupErr.Reason
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, ErrEmptyLink):
		return ReasonBadResponse
	default:
		return ReasonUnreachable
	}
}

// contextReason maps a finished context to a failure reason.
func contextReason(ctx context.Context) (Reason, bool) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ReasonTimeout, true
	case errors.Is(ctx.Err(), context.Canceled):
		return ReasonCancelled, true
	default:
		return "", false
	}
}

// shouldRetry reports whether a failed lookup is worth another attempt.
func shouldRetry(err error) bool {
	var lookupErr *Error
	if !errors.As(err, &lookupErr) {
		return false
	}
	switch lookupErr.Reason {
	case ReasonUnreachable:
		return true
	case ReasonBadResponse:
		// 4xx will not change on retry, except throttling
		return lookupErr.StatusCode >= 500 || lookupErr.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}
