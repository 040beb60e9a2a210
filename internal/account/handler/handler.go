// Package handler exposes account login, logout and profile endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bondgateway/internal/account"
	"bondgateway/internal/account/service"
	id "bondgateway/pkg/domain"
	dErrors "bondgateway/pkg/domain-errors"
	"bondgateway/pkg/platform/httputil"
)

type Service interface {
	Login(ctx context.Context, email string) (*service.Session, error)
	Logout(ctx context.Context, userID id.UserID) error
	Me(ctx context.Context, userID id.UserID) (*account.UserAccount, error)
}

type Handler struct {
	service     Service
	requireAuth func(http.Handler) http.Handler
	logger      *slog.Logger
}

// New wires the handler; requireAuth guards logout and me.
func New(svc Service, requireAuth func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{service: svc, requireAuth: requireAuth, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/account", func(r chi.Router) {
		r.Post("/login", h.HandleLogin)
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/logout", h.HandleLogout)
			r.Get("/me", h.HandleMe)
		})
	})
}

type LoginRequest struct {
	Email string `json:"email"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}
	session, err := h.service.Login(ctx, req.Email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Logout(ctx, userID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	acct, err := h.service.Me(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acct)
}
