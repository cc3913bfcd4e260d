package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Authenticator verifies credentials and records session events.
type Authenticator interface {
	Authenticate(ctx context.Context, tenantCode, email, password string) (shared.Actor, error)
	Logout(ctx context.Context) error
}

// LoginRequest carries credentials for POST /auth/token.
type LoginRequest struct {
	TenantCode string `json:"tenant_code" validate:"required,max=32"`
	Email      string `json:"email" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=72"`
}

// Handler wires token endpoints.
type Handler struct {
	logger        *slog.Logger
	authenticator Authenticator
	issuer        *Issuer
}

// NewHandler creates a new auth handler.
func NewHandler(logger *slog.Logger, authenticator Authenticator, issuer *Issuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, authenticator: authenticator, issuer: issuer}
}

// MountRoutes registers /auth. Token issuance is public; logout needs a valid token.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", h.handleToken)
		r.With(Middleware(h.issuer, h.logger)).Post("/logout", h.handleLogout)
	})
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ctx := shared.ContextWithActor(r.Context(), shared.Actor{IP: clientIP(r), UserAgent: r.UserAgent()})
	actor, err := h.authenticator.Authenticate(ctx, req.TenantCode, req.Email, req.Password)
	if err != nil {
		h.logger.Warn("login failed", slog.String("tenant", req.TenantCode), slog.String("ip", clientIP(r)))
		httpx.RespondError(w, h.logger, err)
		return
	}
	token, err := h.issuer.Issue(actor)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.authenticator.Logout(r.Context()); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w)
}
