package budget

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type budgetService interface {
	Create(ctx context.Context, in CreateInput) (Budget, error)
	List(ctx context.Context, filters ListFilters) ([]Budget, int, error)
	Get(ctx context.Context, id int64) (Budget, error)
	Update(ctx context.Context, id int64, in UpdateInput) (Budget, error)
	Delete(ctx context.Context, id int64) error
	UpdateActual(ctx context.Context, budgetID, lineID int64, in ActualInput) (Budget, error)
	Approve(ctx context.Context, id int64) (Budget, error)
	Reject(ctx context.Context, id int64) (Budget, error)
	Close(ctx context.Context, id int64) (Budget, error)
	VarianceReport(ctx context.Context, id int64, th Thresholds) ([]ReportRow, error)
}

type Handler struct {
	logger  *slog.Logger
	service budgetService
}

func NewHandler(logger *slog.Logger, service budgetService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type listResponse struct {
	Items []Budget `json:"items"`
	Total int      `json:"total"`
}

// MountRoutes registers /budget. Approval decisions need admin or manager.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/budget", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/variance", h.variance)
		r.Get("/{id}", h.get)
		r.Get("/{id}/variance-report", h.report)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAnyRole(shared.RoleAdmin, shared.RoleManager, shared.RoleOperator))
			r.Post("/", h.create)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.delete)
			r.Put("/{id}/lines/{lineID}/actual", h.updateActual)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAnyRole(shared.RoleAdmin, shared.RoleManager))
			r.Post("/{id}/approve", h.decide(budgetService.Approve))
			r.Post("/{id}/reject", h.decide(budgetService.Reject))
			r.Post("/{id}/close", h.decide(budgetService.Close))
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := shared.ParseListParams(q)
	filters := ListFilters{
		Department: strings.TrimSpace(q.Get("department")),
		Status:     Status(q.Get("status")),
		Limit:      params.Limit,
		Offset:     params.Offset,
	}
	if raw := q.Get("fiscal_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.Invalid("invalid fiscal_year %q", raw))
			return
		}
		filters.FiscalYear = year
	}
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

func (h *Handler) variance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	budget, err := decimalParam(q, "budget", true)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actual, err := decimalParam(q, "actual", true)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, CalculateVariance(*budget, *actual))
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	var th Thresholds
	if th.Amount, err = decimalParam(q, "threshold_amount", false); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if th.Percent, err = decimalParam(q, "threshold_percent", false); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	rows, err := h.service.VarianceReport(r.Context(), id, th)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	b, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in UpdateInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	b, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
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

func (h *Handler) updateActual(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	lineID, err := httpx.IDParam(r, "lineID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in ActualInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	b, err := h.service.UpdateActual(r.Context(), id, lineID, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) decide(fn func(budgetService, context.Context, int64) (Budget, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		b, err := fn(h.service, r.Context(), id)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, b)
	}
}

func decimalParam(q url.Values, name string, required bool) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		if required {
			return nil, shared.Invalid("%s required", name)
		}
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, shared.Invalid("invalid %s %q", name, raw)
	}
	return &d, nil
}
