package store

import (
	"context"
	"fmt"
	"sync"

	"bondgateway/internal/account"
	id "bondgateway/pkg/domain"
	"bondgateway/pkg/platform/sentinel"
)

// InMemory keeps accounts for the lifetime of the process.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[id.UserID]account.UserAccount
	byEmail  map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[id.UserID]account.UserAccount),
		byEmail:  make(map[string]id.UserID),
	}
}

func (s *InMemory) Save(_ context.Context, acct *account.UserAccount) error {
	if acct == nil {
		return fmt.Errorf("account is required")
	}
	email := account.NormalizeEmail(acct.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.byEmail[email]; ok && owner != acct.ID {
		return fmt.Errorf("email %q: %w", email, sentinel.ErrAlreadyUsed)
	}
	if prev, ok := s.accounts[acct.ID]; ok {
		delete(s.byEmail, account.NormalizeEmail(prev.Email))
	}
	s.accounts[acct.ID] = *acct
	s.byEmail[email] = acct.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*account.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return &acct, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*account.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[account.NormalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	acct := s.accounts[userID]
	return &acct, nil
}

func (s *InMemory) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	delete(s.accounts, userID)
	delete(s.byEmail, account.NormalizeEmail(acct.Email))
	return nil
}

func (s *InMemory) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}
