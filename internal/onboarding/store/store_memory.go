// Package store keeps live onboarding machines keyed by session ID. Sessions
// are process-local: a restart of the gateway loses unfinished onboarding.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bondgateway/internal/onboarding/machine"
	id "bondgateway/pkg/domain"
	"bondgateway/pkg/platform/sentinel"
)

// Entry is one applicant's onboarding session.
type Entry struct {
	ID          id.SessionID
	Machine     *machine.Machine
	DeviceLabel string
	CreatedAt   time.Time

	mu         sync.Mutex
	lastSeenAt time.Time
}

func (e *Entry) LastSeenAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeenAt
}

func (e *Entry) touch(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeenAt = now
}

type InMemory struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*Entry
	now      func() time.Time
}

type Option func(*InMemory)

func WithClock(now func() time.Time) Option {
	return func(s *InMemory) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *InMemory {
	s := &InMemory{sessions: make(map[id.SessionID]*Entry), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Create(_ context.Context, m *machine.Machine, deviceLabel string) (*Entry, error) {
	now := s.now()
	entry := &Entry{
		ID:          id.NewSessionID(),
		Machine:     m,
		DeviceLabel: deviceLabel,
		CreatedAt:   now,
		lastSeenAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[entry.ID]; exists {
		return nil, fmt.Errorf("session %s: %w", entry.ID, sentinel.ErrConflict)
	}
	s.sessions[entry.ID] = entry
	return entry, nil
}

// Get returns the session and refreshes its idle timer.
func (s *InMemory) Get(_ context.Context, sessionID id.SessionID) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	entry.touch(s.now())
	return entry, nil
}

func (s *InMemory) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	delete(s.sessions, sessionID)
	return nil
}

// DeleteIdleSessions removes sessions not seen since cutoff and returns how many went.
func (s *InMemory) DeleteIdleSessions(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for sid, entry := range s.sessions {
		if entry.LastSeenAt().Before(cutoff) {
			delete(s.sessions, sid)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemory) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
