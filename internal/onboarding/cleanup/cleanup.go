// Package cleanup removes onboarding sessions that have gone idle.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SessionStore exposes idle-session removal.
type SessionStore interface {
	DeleteIdleSessions(ctx context.Context, cutoff time.Time) (int, error)
	Count() int
}

// Metrics receives cleanup results; nil disables recording.
type Metrics interface {
	RecordSessionsExpired(n int)
	SetActiveSessions(n int)
}

type Service struct {
	store    SessionStore
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	metrics  Metrics
	now      func() time.Time
}

type Option func(*Service)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a sweeper that deletes sessions idle for longer than ttl.
func New(store SessionStore, ttl time.Duration, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	s := &Service{
		store:    store,
		ttl:      ttl,
		interval: 5 * time.Minute,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start sweeps every interval until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "onboarding session cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep and returns the number of sessions removed.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	deleted, err := s.store.DeleteIdleSessions(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("delete idle onboarding sessions: %w", err)
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "removed idle onboarding sessions", "count", deleted)
	}
	if s.metrics != nil {
		s.metrics.RecordSessionsExpired(deleted)
		s.metrics.SetActiveSessions(s.store.Count())
	}
	return deleted, nil
}
