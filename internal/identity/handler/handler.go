// Package handler exposes the verification proxy as POST /api/verify-bvn.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bondgateway/internal/audit"
	"bondgateway/internal/identity/models"
	"bondgateway/pkg/domain"
	dErrors "bondgateway/pkg/domain-errors"
	"bondgateway/pkg/platform/httputil"
	"bondgateway/pkg/requestcontext"
)

const internalErrorMessage = "Internal server error"

type Verifier interface {
	Verify(ctx context.Context, bvn string) (*models.Outcome, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Handler struct {
	verifier Verifier
	audit    AuditPublisher
	logger   *slog.Logger
}

func New(verifier Verifier, auditPort AuditPublisher, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, audit: auditPort, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/verify-bvn", h.HandleVerify)
}

type VerifyRequest struct {
	BVN string `json:"bvn"`
}

// VerifyResponse mirrors models.Outcome on the wire: data is present only on
// success and code only when the provider supplied one.
type VerifyResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    *models.Profile `json:"data,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// HandleVerify answers 200 for both verified and rejected identities; only
// malformed claims (400) and server faults (500) use error statuses.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode verify request", "error", err, "request_id", requestID)
		httputil.WriteJSON(w, http.StatusBadRequest, VerifyResponse{Message: domain.InvalidBVNMessage})
		return
	}

	outcome, err := h.verifier.Verify(ctx, req.BVN)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.emitAudit(ctx, domain.BVN(req.BVN), outcome)

	resp := VerifyResponse{Success: outcome.Success, Message: outcome.Message, Code: outcome.ProviderCode}
	if outcome.Success {
		resp.Data = outcome.Profile
		resp.Code = ""
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case dErrors.HasCode(err, dErrors.CodeValidation):
		httputil.WriteJSON(w, http.StatusBadRequest, VerifyResponse{Message: dErrors.Message(err, domain.InvalidBVNMessage)})
	case dErrors.HasCode(err, dErrors.CodeConfiguration):
		httputil.WriteJSON(w, http.StatusInternalServerError, VerifyResponse{Message: dErrors.Message(err, "Server configuration error")})
	default:
		h.logger.ErrorContext(ctx, "verify-bvn failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteJSON(w, http.StatusInternalServerError, VerifyResponse{Message: internalErrorMessage})
	}
}

func (h *Handler) emitAudit(ctx context.Context, bvn domain.BVN, outcome *models.Outcome) {
	if h.audit == nil {
		return
	}
	event := audit.Event{
		Subject:  "bvn:" + bvn.Redacted(),
		Action:   audit.ActionVerificationFailed,
		Decision: "rejected",
		Reason:   outcome.Message,
	}
	if outcome.Success {
		event.Action = audit.ActionVerificationSucceeded
		event.Decision = "verified"
	}
	if err := h.audit.Emit(ctx, event); err != nil {
		h.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "action", event.Action)
	}
}
