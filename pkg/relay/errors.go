package relay

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies errors returned to callers of the relay.
type Kind int

const (
	KindRateLimited Kind = iota + 1
	KindInvalidRequest
	KindUpstreamTimeout
	KindUpstreamFailure
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidRequest:
		return "invalid_request"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamFailure:
		return "upstream_failure"
	}
	return "unknown"
}

// Error is returned by every relay operation that rejects or fails a request.
type Error struct {
	Kind Kind
	Err  error

	// Set for KindRateLimited only.
	RetryAfter time.Duration
	Remaining  int
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Err == nil
}

var (
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrInvalidRequest  = &Error{Kind: KindInvalidRequest}
	ErrUpstreamTimeout = &Error{Kind: KindUpstreamTimeout}
	ErrUpstreamFailure = &Error{Kind: KindUpstreamFailure}

	// ErrClientDisconnected is returned when the caller went away mid-request.
	// It is not part of the caller-facing taxonomy: there is no one left to tell.
	ErrClientDisconnected = errors.New("client disconnected")

	errUpstreamTimeout = errors.New("upstream call timed out")
)

// KindOf returns the kind of err, or 0 if err is not a relay error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
