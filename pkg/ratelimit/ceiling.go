package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Ceiling caps admissions across all identities with a token bucket.
// It runs after the per-identity check, so a request rejected per identity
// never consumes a global token. A request the ceiling rejects is handed back
// to the wrapped limiter when it supports refunds.
type Ceiling struct {
	next    Limiter
	limiter *rate.Limiter
	now     func() time.Time
}

// WithCeiling wraps next with a process-wide limit of rps requests per second.
// A non-positive rps disables the ceiling and returns next unchanged.
func WithCeiling(next Limiter, rps float64, burst int) Limiter {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Ceiling{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
	}
}

func (c *Ceiling) Admit(ctx context.Context, identity string) (Decision, error) {
	d, err := c.next.Admit(ctx, identity)
	if err != nil || !d.Allowed {
		return d, err
	}

	now := c.now()
	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		c.refund(identity)
		return Decision{Limit: d.Limit, ResetAt: d.ResetAt, RetryAfter: time.Second}, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		c.refund(identity)
		return Decision{Limit: d.Limit, ResetAt: d.ResetAt, RetryAfter: retryAfter(delay)}, nil
	}
	return d, nil
}

func (c *Ceiling) refund(identity string) {
	if r, ok := c.next.(refunder); ok {
		r.Refund(identity)
	}
}

// SetOptions forwards to the wrapped limiter. The ceiling itself is fixed at
// construction.
func (c *Ceiling) SetOptions(opts Options) {
	if r, ok := c.next.(Reconfigurable); ok {
		r.SetOptions(opts)
	}
}
