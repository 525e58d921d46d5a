package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker refuses calls.
var ErrCircuitOpen = errors.New("upstream circuit open")

// Breaker wraps a Completer with a circuit breaker. A stream counts as one call
// that succeeds or fails when it ends, not when it opens.
type Breaker struct {
	next Completer
	cb   *gobreaker.TwoStepCircuitBreaker
}

// BreakerSettings control when the circuit trips and how long it stays open.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func NewBreaker(next Completer, s BreakerSettings) *Breaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.Name == "" {
		s.Name = "upstream"
	}
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:    s.Name,
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			circuitState.WithLabelValues(name).Set(float64(to))
		},
	})
	return &Breaker{next: next, cb: cb}
}

// State reports "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) allow() (func(bool), error) {
	done, err := b.cb.Allow()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return done, err
}

// failed decides whether err counts against the upstream. A caller that went
// away is not the upstream's fault.
func failed(err error) bool {
	return err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled)
}

func (b *Breaker) Complete(ctx context.Context, req Request) (*Completion, error) {
	done, err := b.allow()
	if err != nil {
		return nil, err
	}
	c, err := b.next.Complete(ctx, req)
	done(!failed(err))
	return c, err
}

func (b *Breaker) Stream(ctx context.Context, req Request) (Stream, error) {
	done, err := b.allow()
	if err != nil {
		return nil, err
	}
	s, err := b.next.Stream(ctx, req)
	if err != nil {
		done(!failed(err))
		return nil, err
	}
	return &breakerStream{Stream: s, done: done}, nil
}

type breakerStream struct {
	Stream
	done func(bool)
	once sync.Once
}

func (s *breakerStream) finish(success bool) {
	s.once.Do(func() { s.done(success) })
}

func (s *breakerStream) Recv() (string, error) {
	text, err := s.Stream.Recv()
	if err != nil {
		s.finish(!failed(err))
	}
	return text, err
}

// Close reports success if the stream ended without an upstream error, for
// example when the caller stopped reading early.
func (s *breakerStream) Close() error {
	s.finish(true)
	return s.Stream.Close()
}
