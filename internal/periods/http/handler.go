package periodshttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/periods"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type periodService interface {
	Create(ctx context.Context, in periods.CreatePeriodInput) (periods.Period, error)
	FindAll(ctx context.Context) ([]periods.Period, error)
	Get(ctx context.Context, id int64) (periods.Period, error)
	GetActivePeriod(ctx context.Context, date time.Time) (*periods.Period, error)
	IsDateInClosedPeriod(ctx context.Context, date time.Time) (bool, error)
	Close(ctx context.Context, id, userID int64) (periods.Period, error)
	Reopen(ctx context.Context, id, userID int64) (periods.Period, error)
	Update(ctx context.Context, id int64, in periods.UpdatePeriodInput) (periods.Period, error)
	Delete(ctx context.Context, id int64) error
}

// Handler wires HTTP endpoints for managing accounting periods.
type Handler struct {
	logger  *slog.Logger
	service periodService
}

// NewHandler constructs a periods HTTP handler.
func NewHandler(logger *slog.Logger, service periodService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounting-periods", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/active/{tenantID}/{date}", h.active)
		r.Get("/check-closed/{tenantID}/{date}", h.checkClosed)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAnyRole(shared.RoleAdmin, shared.RoleManager))
			r.Post("/", h.create)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.delete)
			r.Post("/{id}/close", h.close)
			r.Post("/{id}/reopen", h.reopen)
		})
	})
}

type activeResponse struct {
	TenantID int64           `json:"tenant_id"`
	Date     shared.Date     `json:"date"`
	Period   *periods.Period `json:"period"`
}

type checkClosedResponse struct {
	TenantID int64       `json:"tenant_id"`
	Date     shared.Date `json:"date"`
	IsClosed bool        `json:"is_closed"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.FindAll(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in periods.CreatePeriodInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in periods.UpdatePeriodInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Close)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reopen)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) (periods.Period, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := fn(r.Context(), id, shared.UserFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) active(w http.ResponseWriter, r *http.Request) {
	tenantID, date, err := h.tenantDate(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.GetActivePeriod(r.Context(), date.Time)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, activeResponse{TenantID: tenantID, Date: date, Period: p})
}

func (h *Handler) checkClosed(w http.ResponseWriter, r *http.Request) {
	tenantID, date, err := h.tenantDate(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	closed, err := h.service.IsDateInClosedPeriod(r.Context(), date.Time)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkClosedResponse{TenantID: tenantID, Date: date, IsClosed: closed})
}

// tenantDate parses {tenantID}/{date} and rejects tenants other than the caller's.
func (h *Handler) tenantDate(r *http.Request) (int64, shared.Date, error) {
	tenantID, err := httpx.IDParam(r, "tenantID")
	if err != nil {
		return 0, shared.Date{}, err
	}
	own, err := shared.TenantFromContext(r.Context())
	if err != nil {
		return 0, shared.Date{}, err
	}
	if own != tenantID {
		return 0, shared.Date{}, shared.ErrForbidden
	}
	date, err := shared.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		return 0, shared.Date{}, err
	}
	return tenantID, date, nil
}
