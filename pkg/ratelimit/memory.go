package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow implements rate limiting with one in-memory counter per identity.
// Check and update happen under one lock, so concurrent calls for the same
// identity can never admit more than MaxPerWindow requests per window.
type FixedWindow struct {
	mu      sync.Mutex
	opts    Options
	windows map[string]*window
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

type Option func(*FixedWindow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *FixedWindow) { f.now = now }
}

func NewFixedWindow(opts Options, options ...Option) *FixedWindow {
	f := &FixedWindow{
		opts:    opts,
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, o := range options {
		o(f)
	}
	return f
}

// StartSweeper drops expired records every interval until Close is called.
func (f *FixedWindow) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	f.mu.Lock()
	if f.stop != nil {
		f.mu.Unlock()
		return
	}
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	stop, done := f.stop, f.done
	f.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// Close stops the sweeper, if running.
func (f *FixedWindow) Close() error {
	f.once.Do(func() {
		f.mu.Lock()
		stop, done := f.stop, f.done
		f.mu.Unlock()
		if stop != nil {
			close(stop)
			<-done
		}
	})
	return nil
}

// SetOptions swaps the limits. Existing windows keep their reset time.
func (f *FixedWindow) SetOptions(opts Options) {
	f.mu.Lock()
	f.opts = opts
	f.mu.Unlock()
}

func (f *FixedWindow) Admit(_ context.Context, identity string) (Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	limit := f.opts.MaxPerWindow

	w, ok := f.windows[identity]
	if !ok || now.After(w.resetAt) {
		if !ok {
			f.makeRoomLocked(now)
		}
		w = &window{resetAt: now.Add(f.opts.Window)}
		f.windows[identity] = w
	}

	if w.count >= limit {
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    w.resetAt,
			RetryAfter: retryAfter(w.resetAt.Sub(now)),
		}, nil
	}

	w.count++
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - w.count,
		ResetAt:   w.resetAt,
	}, nil
}

// Refund gives back one admission to identity in its current window.
func (f *FixedWindow) Refund(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[identity]; ok && w.count > 0 && !f.now().After(w.resetAt) {
		w.count--
	}
}

// Sweep removes every record whose window has expired and returns how many
// were removed.
func (f *FixedWindow) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweepLocked(f.now())
}

func (f *FixedWindow) sweepLocked(now time.Time) int {
	n := 0
	for id, w := range f.windows {
		if now.After(w.resetAt) {
			delete(f.windows, id)
			n++
		}
	}
	return n
}

// makeRoomLocked keeps the map under MaxIdentities before a new identity is
// inserted: expired records go first, then the one closest to its reset.
func (f *FixedWindow) makeRoomLocked(now time.Time) {
	limit := f.opts.MaxIdentities
	if limit <= 0 || len(f.windows) < limit {
		return
	}
	f.sweepLocked(now)
	for len(f.windows) >= limit {
		var oldestID string
		var oldest time.Time
		for id, w := range f.windows {
			if oldestID == "" || w.resetAt.Before(oldest) {
				oldestID, oldest = id, w.resetAt
			}
		}
		delete(f.windows, oldestID)
	}
}

// Len is the number of tracked identities.
func (f *FixedWindow) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}
