// Package service registers onboarded accounts and handles login, logout and
// profile lookups.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bondgateway/internal/account"
	"bondgateway/internal/account/store"
	"bondgateway/internal/audit"
	"bondgateway/internal/platform/metrics"
	id "bondgateway/pkg/domain"
	dErrors "bondgateway/pkg/domain-errors"
	"bondgateway/pkg/platform/sentinel"
)

const (
	MessageNoAccounts   = "No account found. Please register first."
	MessageUnknownEmail = "Invalid email or user does not exist."
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, userID id.UserID, walletID string) (string, time.Time, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Session is what registration and login return to the client.
type Session struct {
	Account   *account.UserAccount `json:"user"`
	Token     string               `json:"token"`
	ExpiresAt time.Time            `json:"expiresAt"`
}

type Service struct {
	store   store.Store
	tokens  TokenIssuer
	audit   AuditPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(st store.Store, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{store: st, tokens: tokens, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register persists a completed onboarding account and issues a token.
func (s *Service) Register(ctx context.Context, acct *account.UserAccount) (*Session, error) {
	if acct == nil || acct.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "account is required")
	}
	acct.Email = account.NormalizeEmail(acct.Email)
	if err := s.store.Save(ctx, acct); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "An account with this email already exists.")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save account")
	}
	session, err := s.issue(ctx, acct)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AccountsCreated.Inc()
	}
	s.emit(ctx, acct.ID, audit.ActionAccountCreated, "")
	s.logger.InfoContext(ctx, "account registered", "user_id", acct.ID.String(), "wallet_id", acct.WalletID)
	return session, nil
}

// Login finds the account by email, ignoring case and surrounding space.
func (s *Service) Login(ctx context.Context, email string) (*Session, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up accounts")
	}
	if n == 0 {
		s.loginFailed(ctx, "no_accounts")
		return nil, dErrors.New(dErrors.CodeNotFound, MessageNoAccounts)
	}
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.loginFailed(ctx, "unknown_email")
			return nil, dErrors.New(dErrors.CodeUnauthorized, MessageUnknownEmail)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}
	session, err := s.issue(ctx, acct)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, acct.ID, audit.ActionAccountLoggedIn, "")
	return session, nil
}

// Logout clears the stored account record.
func (s *Service) Logout(ctx context.Context, userID id.UserID) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear account")
	}
	s.emit(ctx, userID, audit.ActionAccountLoggedOut, "")
	return nil
}

func (s *Service) Me(ctx context.Context, userID id.UserID) (*account.UserAccount, error) {
	acct, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return acct, nil
}

func (s *Service) issue(ctx context.Context, acct *account.UserAccount) (*Session, error) {
	tok, expiresAt, err := s.tokens.Issue(ctx, acct.ID, acct.WalletID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	return &Session{Account: acct, Token: tok, ExpiresAt: expiresAt}, nil
}

func (s *Service) loginFailed(ctx context.Context, reason string) {
	if s.metrics != nil {
		s.metrics.LoginFailures.Inc()
	}
	s.logger.InfoContext(ctx, "login rejected", "reason", reason)
}

func (s *Service) emit(ctx context.Context, userID id.UserID, action audit.Action, reason string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		Subject:  "account:" + userID.String(),
		Action:   action,
		Decision: "granted",
		Reason:   reason,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", string(action), "error", err)
	}
}
