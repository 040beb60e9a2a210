// Package ratelimit caps how often one client may call the mutating API.
// Each verification attempt costs a paid provider lookup, so the limit is
// applied before the request reaches a handler.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result describes one admission decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until another request may pass.
func (r Result) RetryAfter(now time.Time) int {
	if r.Allowed {
		return 0
	}
	seconds := int(r.ResetAt.Sub(now).Seconds())
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Store records requests in a sliding window per key.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

type window struct {
	timestamps []time.Time
}

func (w *window) prune(now time.Time, size time.Duration) {
	cutoff := now.Add(-size)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}

// InMemory is a process-local sliding window store.
type InMemory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type Option func(*InMemory)

func WithClock(now func() time.Time) Option {
	return func(s *InMemory) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{windows: make(map[string]*window), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Allow(_ context.Context, key string, limit int, size time.Duration) (Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	w.prune(now, size)

	if len(w.timestamps) >= limit {
		return Result{Limit: limit, ResetAt: w.timestamps[0].Add(size)}, nil
	}
	w.timestamps = append(w.timestamps, now)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.timestamps),
		ResetAt:   w.timestamps[0].Add(size),
	}, nil
}

// Sweep drops keys with no requests inside size.
func (s *InMemory) Sweep(size time.Duration) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, w := range s.windows {
		w.prune(now, size)
		if len(w.timestamps) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}
