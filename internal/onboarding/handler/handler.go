// Package handler exposes the onboarding workflow over HTTP. Each session
// owns one state machine; the session ID is the only handle a client holds.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bondgateway/internal/account"
	accountservice "bondgateway/internal/account/service"
	"bondgateway/internal/audit"
	"bondgateway/internal/onboarding/machine"
	"bondgateway/internal/onboarding/store"
	"bondgateway/internal/platform/metrics"
	id "bondgateway/pkg/domain"
	dErrors "bondgateway/pkg/domain-errors"
	"bondgateway/pkg/platform/httputil"
	"bondgateway/pkg/platform/sentinel"
	"bondgateway/pkg/requestcontext"
)

type SessionStore interface {
	Create(ctx context.Context, m *machine.Machine, deviceLabel string) (*store.Entry, error)
	Get(ctx context.Context, sessionID id.SessionID) (*store.Entry, error)
	Count() int
}

// AccountRegistrar persists the account derived at completion.
type AccountRegistrar interface {
	Register(ctx context.Context, acct *account.UserAccount) (*accountservice.Session, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Handler struct {
	sessions   SessionStore
	newMachine func() *machine.Machine
	accounts   AccountRegistrar
	audit      AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Handler)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(h *Handler) { h.audit = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func New(sessions SessionStore, newMachine func() *machine.Machine, accounts AccountRegistrar, opts ...Option) *Handler {
	h := &Handler{
		sessions:   sessions,
		newMachine: newMachine,
		accounts:   accounts,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/onboarding/sessions", func(r chi.Router) {
		r.Post("/", h.HandleStart)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/identity", h.HandleSubmitIdentity)
			r.Post("/profile", h.HandleConfirmProfile)
			r.Post("/liveness", h.HandleCompleteLiveness)
			r.Post("/abandon", h.HandleAbandon)
			r.Post("/restart", h.HandleRestart)
		})
	})
}

// SessionResponse is returned by every onboarding endpoint.
type SessionResponse struct {
	SessionID   string          `json:"sessionId"`
	DeviceLabel string          `json:"device,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Session     machine.Session `json:"session"`
	// Token and ExpiresAt are set once the account has been registered.
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type IdentityRequest struct {
	BVN string `json:"bvn"`
}

type ProfileRequest struct {
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, err := h.sessions.Create(ctx, h.newMachine(), requestcontext.DeviceLabel(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create onboarding session", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start onboarding"))
		return
	}
	if h.metrics != nil {
		h.metrics.OnboardingStarted.Inc()
		h.metrics.SetActiveSessions(h.sessions.Count())
	}
	h.logger.InfoContext(ctx, "onboarding session started",
		"session_id", entry.ID.String(),
		"device", entry.DeviceLabel,
	)
	httputil.WriteJSON(w, http.StatusCreated, toResponse(entry, entry.Machine.Snapshot()))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(entry, entry.Machine.Snapshot()))
}

// HandleSubmitIdentity answers 200 whether or not the BVN verified; a
// rejection is reported in session.attemptError with the step unchanged.
func (h *Handler) HandleSubmitIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[IdentityRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	h.emit(ctx, entry, audit.ActionVerificationAttempted, "pending", "")
	session, err := entry.Machine.SubmitIdentity(ctx, req.BVN)
	if err != nil {
		h.writeTransitionError(ctx, w, entry, err)
		return
	}
	if session.AttemptError != "" {
		h.emit(ctx, entry, audit.ActionVerificationFailed, "rejected", session.AttemptError)
	} else {
		h.emit(ctx, entry, audit.ActionVerificationSucceeded, "verified", "")
		h.recordTransition(session.Step)
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(entry, session))
}

func (h *Handler) HandleConfirmProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[ProfileRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}
	session, err := entry.Machine.ConfirmProfile(machine.ProfileEdits{Email: req.Email, Phone: req.Phone})
	if err != nil {
		h.writeTransitionError(ctx, w, entry, err)
		return
	}
	h.recordTransition(session.Step)
	httputil.WriteJSON(w, http.StatusOK, toResponse(entry, session))
}

// HandleCompleteLiveness finishes onboarding and registers the account.
// Calling it again on a complete session retries registration.
func (h *Handler) HandleCompleteLiveness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}

	session := entry.Machine.Snapshot()
	if session.Step != machine.StepComplete || session.Abandoned {
		var err error
		session, err = entry.Machine.CompleteLiveness(ctx)
		if err != nil {
			h.writeTransitionError(ctx, w, entry, err)
			return
		}
		if session.Step != machine.StepComplete {
			httputil.WriteJSON(w, http.StatusOK, toResponse(entry, session))
			return
		}
		h.recordTransition(session.Step)
		if h.metrics != nil {
			h.metrics.OnboardingCompleted.Inc()
		}
	}

	acct, ok := entry.Machine.Account()
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "completed session has no account"))
		return
	}
	registered, err := h.accounts.Register(ctx, acct)
	if err != nil {
		h.logger.WarnContext(ctx, "account registration failed",
			"session_id", entry.ID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := toResponse(entry, session)
	resp.Token = registered.Token
	resp.ExpiresAt = &registered.ExpiresAt
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	already := entry.Machine.Snapshot().Abandoned
	session := entry.Machine.Abandon()
	if !already {
		if h.metrics != nil {
			h.metrics.OnboardingAbandoned.Inc()
		}
		h.emit(ctx, entry, audit.ActionOnboardingAbandoned, "abandoned", string(session.Step))
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(entry, session))
}

func (h *Handler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	session, err := entry.Machine.Restart()
	if err != nil {
		h.writeTransitionError(ctx, w, entry, err)
		return
	}
	h.recordTransition(session.Step)
	httputil.WriteJSON(w, http.StatusOK, toResponse(entry, session))
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*store.Entry, bool) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	entry, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "onboarding session not found"))
			return nil, false
		}
		h.logger.ErrorContext(ctx, "failed to load onboarding session", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session"))
		return nil, false
	}
	return entry, true
}

func (h *Handler) writeTransitionError(ctx context.Context, w http.ResponseWriter, entry *store.Entry, err error) {
	h.logger.InfoContext(ctx, "onboarding operation refused",
		"session_id", entry.ID.String(),
		"step", string(entry.Machine.Snapshot().Step),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func (h *Handler) recordTransition(step machine.Step) {
	if h.metrics != nil {
		h.metrics.RecordTransition(string(step))
	}
}

func (h *Handler) emit(ctx context.Context, entry *store.Entry, action audit.Action, decision, reason string) {
	if h.audit == nil {
		return
	}
	err := h.audit.Emit(ctx, audit.Event{
		Subject:  "onboarding:" + entry.ID.String(),
		Action:   action,
		Decision: decision,
		Reason:   reason,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to emit audit event", "action", string(action), "error", err)
	}
}

func toResponse(entry *store.Entry, session machine.Session) SessionResponse {
	return SessionResponse{
		SessionID:   entry.ID.String(),
		DeviceLabel: entry.DeviceLabel,
		CreatedAt:   entry.CreatedAt,
		Session:     session,
	}
}
