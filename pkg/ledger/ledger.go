// Package ledger keeps a bounded, in-process history of upstream calls and
// derives dashboard statistics from it.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultCapacity = 1000

// Ledger is a fixed-capacity ring of entries. When full, recording evicts the
// oldest entry. All methods are safe for concurrent use.
type Ledger struct {
	mu    sync.RWMutex
	buf   []Entry
	head  int // index of the next write
	size  int
	now   func() time.Time
	newID func() string
}

type Option func(*Ledger)

// WithClock overrides the time source used for timestamps and windows.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(capacity int, opts ...Option) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Ledger{
		buf:   make([]Entry, capacity),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stamps e with a fresh id and the current time, stores it and returns
// the stored copy.
func (l *Ledger) Record(e Entry) Entry {
	e.TotalTokens = e.PromptTokens + e.CompletionTokens

	l.mu.Lock()
	e.ID = l.newID()
	e.Timestamp = l.now()
	l.buf[l.head] = e
	l.head = (l.head + 1) % len(l.buf)
	if l.size < len(l.buf) {
		l.size++
	}
	l.mu.Unlock()
	return e
}

// List returns entries most recent first. limit <= 0 returns everything.
func (l *Ledger) List(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.listLocked(limit)
}

func (l *Ledger) listLocked(limit int) []Entry {
	n := l.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		idx := (l.head - 1 - i + len(l.buf)) % len(l.buf)
		out[i] = l.buf[idx]
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

func (l *Ledger) Capacity() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf)
}

// Resize changes the capacity, keeping the most recent entries that still fit.
func (l *Ledger) Resize(capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("ledger capacity must be positive, got %d", capacity)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if capacity == len(l.buf) {
		return nil
	}

	kept := l.listLocked(capacity)
	buf := make([]Entry, capacity)
	// kept is newest first; lay it out oldest first
	for i := range kept {
		buf[i] = kept[len(kept)-1-i]
	}
	l.buf = buf
	l.size = len(kept)
	l.head = len(kept) % capacity
	return nil
}

// Clear drops every entry.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = make([]Entry, len(l.buf))
	l.head = 0
	l.size = 0
}

// Stats folds over the current contents. Nothing is cached.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	entries := l.listLocked(0)
	l.mu.RUnlock()

	now := l.now()
	y, m, d := now.Date()
	todayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	oneMinuteAgo := now.Add(-time.Minute)

	var s Stats
	var latency int64
	for _, e := range entries {
		s.TotalRequests++
		if e.Success {
			s.SuccessfulRequests++
		} else {
			s.FailedRequests++
		}
		s.TotalTokens += e.TotalTokens
		s.TotalCost += e.Cost
		latency += e.LatencyMs

		if !e.Timestamp.Before(oneMinuteAgo) {
			s.RequestsPerMinute++
		}
		if !e.Timestamp.Before(todayStart) {
			s.RequestsToday++
			s.TokensToday += e.TotalTokens
			s.CostToday += e.Cost
		}
	}
	if s.TotalRequests > 0 {
		s.AverageTokensPerRequest = float64(s.TotalTokens) / float64(s.TotalRequests)
		s.AverageLatencyMs = float64(latency) / float64(s.TotalRequests)
	}
	return s
}

// Activity returns one bucket per minute for the trailing minutes, oldest
// first, including empty minutes. The last bucket is the current minute.
func (l *Ledger) Activity(minutes int) []ActivityBucket {
	if minutes <= 0 {
		return []ActivityBucket{}
	}
	l.mu.RLock()
	entries := l.listLocked(0)
	l.mu.RUnlock()

	current := l.now().Truncate(time.Minute)
	first := current.Add(-time.Duration(minutes-1) * time.Minute)

	buckets := make([]ActivityBucket, minutes)
	for i := range buckets {
		buckets[i].Timestamp = minuteLabel(first.Add(time.Duration(i) * time.Minute))
	}
	for _, e := range entries {
		ts := e.Timestamp.Truncate(time.Minute)
		if ts.Before(first) || ts.After(current) {
			continue
		}
		buckets[int(ts.Sub(first)/time.Minute)].Count++
	}
	return buckets
}

// minuteLabel formats t as local H:MM.
func minuteLabel(t time.Time) string {
	t = t.Local()
	return fmt.Sprintf("%d:%02d", t.Hour(), t.Minute())
}
