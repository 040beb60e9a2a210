// Package machine implements the onboarding workflow for a single applicant:
// identity, then profile, then liveness, then complete. A step only advances
// when its guard has been satisfied; every failure leaves the step unchanged.
package machine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bondgateway/internal/account"
	"bondgateway/internal/identity/models"
	"bondgateway/pkg/domain"
	dErrors "bondgateway/pkg/domain-errors"
)

type Step string

const (
	StepIdentity Step = "identity"
	StepProfile  Step = "profile"
	StepLiveness Step = "liveness"
	StepComplete Step = "complete"
)

// ordered lists the steps that count towards progress.
var ordered = []Step{StepIdentity, StepProfile, StepLiveness}

var (
	ErrInvalidTransition   = dErrors.New(dErrors.CodeInvalidTransition, "operation not allowed at the current onboarding step")
	ErrVerificationPending = dErrors.New(dErrors.CodeVerificationPending, "identity verification already in progress")
	ErrAbandoned           = dErrors.New(dErrors.CodeInvalidTransition, "onboarding session was abandoned")
	// ErrSuperseded is returned to a caller whose verification finished after
	// a restart or abandon; its result was discarded.
	ErrSuperseded = dErrors.New(dErrors.CodeConflict, "verification result discarded after restart")
)

const fallbackAttemptError = "Internal server error"

// Verifier is satisfied by the identity verification service.
type Verifier interface {
	Verify(ctx context.Context, bvn string) (*models.Outcome, error)
}

// LivenessChecker runs the KYC liveness step.
type LivenessChecker interface {
	Check(ctx context.Context, profile Profile) error
}

// AlwaysPass is the liveness stub: it accepts every applicant.
type AlwaysPass struct{}

func (AlwaysPass) Check(context.Context, Profile) error { return nil }

// Profile is the applicant record seeded from the provider and edited by the user.
type Profile struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Phone       string `json:"phone"`
	Photo       string `json:"photo"`
	Email       string `json:"email"`
}

// ProfileEdits carries user overrides; nil fields keep the seeded value.
type ProfileEdits struct {
	Email *string
	Phone *string
}

// Session is a point-in-time copy of the machine state.
type Session struct {
	Step         Step                 `json:"step"`
	Profile      *Profile             `json:"profile,omitempty"`
	AttemptError string               `json:"attemptError,omitempty"`
	Pending      bool                 `json:"pending"`
	Progress     int                  `json:"progress"`
	Abandoned    bool                 `json:"abandoned,omitempty"`
	Account      *account.UserAccount `json:"account,omitempty"`
}

type Machine struct {
	mu sync.Mutex

	step         Step
	profile      *Profile
	bvn          domain.BVN
	attemptError string
	// pending is owned by the SubmitIdentity call that set it and survives
	// Restart, so a session never has two outbound calls at once.
	pending   bool
	abandoned bool
	account   *account.UserAccount
	// generation invalidates in-flight verifications on Restart and Abandon.
	generation uint64

	verifier Verifier
	liveness LivenessChecker
	logger   *slog.Logger
	now      func() time.Time
	walletID func() (string, error)
}

type Option func(*Machine)

func WithLivenessChecker(c LivenessChecker) Option {
	return func(m *Machine) {
		if c != nil {
			m.liveness = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithWalletIDGenerator replaces account.NewWalletID.
func WithWalletIDGenerator(gen func() (string, error)) Option {
	return func(m *Machine) {
		if gen != nil {
			m.walletID = gen
		}
	}
}

func New(verifier Verifier, opts ...Option) *Machine {
	m := &Machine{
		step:     StepIdentity,
		verifier: verifier,
		liveness: AlwaysPass{},
		logger:   slog.Default(),
		now:      time.Now,
		walletID: account.NewWalletID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SubmitIdentity evaluates the identity guard. At most one evaluation runs
// at a time; a concurrent call fails fast with ErrVerificationPending and
// makes no outbound call. Rejections and provider failures are reported in
// Session.AttemptError, not as errors.
//
// The outbound call is detached from ctx cancellation so a caller that goes
// away does not abort a verification already sent to the provider.
func (m *Machine) SubmitIdentity(ctx context.Context, claim string) (Session, error) {
	m.mu.Lock()
	if err := m.guardLocked(StepIdentity); err != nil {
		m.mu.Unlock()
		return m.Snapshot(), err
	}
	if m.pending {
		m.mu.Unlock()
		return m.Snapshot(), ErrVerificationPending
	}
	m.pending = true
	m.attemptError = ""
	gen := m.generation
	m.mu.Unlock()

	outcome, err := m.verifier.Verify(context.WithoutCancel(ctx), claim)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = false

	if gen != m.generation {
		m.logger.InfoContext(ctx, "discarding stale verification result", "generation", gen)
		return m.snapshotLocked(), ErrSuperseded
	}

	switch {
	case err != nil:
		m.attemptError = dErrors.Message(err, fallbackAttemptError)
	case outcome == nil || !outcome.Success || outcome.Profile == nil:
		m.attemptError = models.MessageRejectedFallback
		if outcome != nil && outcome.Message != "" {
			m.attemptError = outcome.Message
		}
	default:
		m.bvn = domain.BVN(claim)
		m.profile = seedProfile(outcome.Profile)
		m.step = StepProfile
	}
	return m.snapshotLocked(), nil
}

// ConfirmProfile applies the user's edits and moves to liveness.
func (m *Machine) ConfirmProfile(edits ProfileEdits) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guardLocked(StepProfile); err != nil {
		return m.snapshotLocked(), err
	}
	if edits.Email != nil {
		email := strings.TrimSpace(*edits.Email)
		if !strings.Contains(email, "@") {
			return m.snapshotLocked(), dErrors.New(dErrors.CodeValidation, "Invalid email address")
		}
		m.profile.Email = email
	}
	if edits.Phone != nil {
		m.profile.Phone = strings.TrimSpace(*edits.Phone)
	}
	m.attemptError = ""
	m.step = StepLiveness
	return m.snapshotLocked(), nil
}

// CompleteLiveness runs the liveness check and, when it passes, derives the
// account and moves to complete.
func (m *Machine) CompleteLiveness(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guardLocked(StepLiveness); err != nil {
		return m.snapshotLocked(), err
	}
	if err := m.liveness.Check(ctx, *m.profile); err != nil {
		m.attemptError = dErrors.Message(err, "Liveness check failed. Please try again.")
		return m.snapshotLocked(), nil
	}

	walletID, err := m.walletID()
	if err != nil {
		return m.snapshotLocked(), dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate wallet")
	}
	m.account = &account.UserAccount{
		ID:        domain.NewUserID(),
		FirstName: m.profile.FirstName,
		LastName:  m.profile.LastName,
		Email:     m.profile.Email,
		Phone:     m.profile.Phone,
		BVNSuffix: m.bvn.Suffix(),
		WalletID:  walletID,
		JoinedAt:  m.now().UTC(),
	}
	m.attemptError = ""
	m.step = StepComplete
	return m.snapshotLocked(), nil
}

// Restart returns to the identity step and discards any in-flight result.
// An identity submission still in flight keeps the session pending until it
// returns.
func (m *Machine) Restart() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.abandoned {
		return m.snapshotLocked(), ErrAbandoned
	}
	m.generation++
	m.step = StepIdentity
	m.profile = nil
	m.bvn = ""
	m.attemptError = ""
	m.account = nil
	return m.snapshotLocked(), nil
}

// Abandon ends the session permanently; every later operation fails.
func (m *Machine) Abandon() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.abandoned = true
	return m.snapshotLocked()
}

func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Account returns the derived account once the machine is complete.
func (m *Machine) Account() (*account.UserAccount, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return nil, false
	}
	acct := *m.account
	return &acct, true
}

func (m *Machine) guardLocked(want Step) error {
	if m.abandoned {
		return ErrAbandoned
	}
	if m.step != want {
		return ErrInvalidTransition
	}
	return nil
}

func (m *Machine) snapshotLocked() Session {
	s := Session{
		Step:         m.step,
		AttemptError: m.attemptError,
		Pending:      m.pending,
		Progress:     Progress(m.step),
		Abandoned:    m.abandoned,
	}
	if m.profile != nil {
		p := *m.profile
		s.Profile = &p
	}
	if m.account != nil {
		a := *m.account
		s.Account = &a
	}
	return s
}

// Progress is the rounded percentage of steps reached; complete is 100.
func Progress(step Step) int {
	if step == StepComplete {
		return 100
	}
	for i, s := range ordered {
		if s == step {
			return ((i+1)*100 + 1) / len(ordered)
		}
	}
	return 0
}

func seedProfile(p *models.Profile) *Profile {
	return &Profile{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DateOfBirth: p.DateOfBirth,
		Phone:       p.Phone,
		Photo:       p.Photo,
		Email:       DefaultEmail(p.FirstName, p.LastName),
	}
}

// DefaultEmail builds first.last@email.com, lowercased with spaces removed.
// The dot is dropped when there is no last name.
func DefaultEmail(first, last string) string {
	clean := func(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), "")) }
	local := clean(first)
	if l := clean(last); l != "" {
		local += "." + l
	}
	return local + "@email.com"
}
