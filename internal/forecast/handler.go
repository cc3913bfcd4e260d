package forecast

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type forecastService interface {
	Create(ctx context.Context, in CreateInput) (Forecast, error)
	Generate(ctx context.Context, in GenerateInput) (Forecast, error)
	List(ctx context.Context, filters ListFilters) ([]Forecast, int, error)
	Get(ctx context.Context, id int64) (Forecast, error)
	Update(ctx context.Context, id int64, in UpdateInput) (Forecast, error)
	Delete(ctx context.Context, id int64) error
	RecordActual(ctx context.Context, forecastID, lineID int64, in ActualInput) (Line, error)
}

type Handler struct {
	logger  *slog.Logger
	service forecastService
}

func NewHandler(logger *slog.Logger, service forecastService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type listResponse struct {
	Items []Forecast `json:"items"`
	Total int        `json:"total"`
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/forecast", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAnyRole(shared.RoleAdmin, shared.RoleManager, shared.RoleOperator))
			r.Post("/", h.create)
			r.Post("/generate", h.generate)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.delete)
			r.Put("/{id}/lines/{lineID}/actual", h.recordActual)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := shared.ParseListParams(q)
	filters := ListFilters{Status: Status(q.Get("status")), Limit: params.Limit, Offset: params.Offset}
	if raw := q.Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, h.logger, shared.Invalid("invalid product_id %q", raw))
			return
		}
		filters.ProductID = id
	}
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	f, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	f, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var in GenerateInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	f, err := h.service.Generate(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
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
	f, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
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

func (h *Handler) recordActual(w http.ResponseWriter, r *http.Request) {
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
	line, err := h.service.RecordActual(r.Context(), id, lineID, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}
