// Package ratelimit decides whether a client may start another chat request.
// The in-memory backend is a fixed-window counter per client identity; a
// Redis backend and a process-wide ceiling can be layered on top.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter defines the interface for admission backends.
type Limiter interface {
	Admit(ctx context.Context, identity string) (Decision, error)
}

// Reconfigurable limiters accept new options while serving.
type Reconfigurable interface {
	SetOptions(Options)
}

// refunder limiters can give back an admission that a later stage rejected.
type refunder interface {
	Refund(identity string)
}

// Options bounds one identity's requests per window.
type Options struct {
	Window        time.Duration
	MaxPerWindow  int
	MaxIdentities int
}

// retryAfter rounds d up to whole seconds, never below one.
func retryAfter(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
