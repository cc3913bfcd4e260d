package bom

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

type bomService interface {
	Create(ctx context.Context, in CreateInput) (BOM, error)
	List(ctx context.Context, filters ListFilters) ([]BOM, int, error)
	Get(ctx context.Context, id int64) (BOM, error)
	Update(ctx context.Context, id int64, in UpdateInput) (BOM, error)
	Delete(ctx context.Context, id int64) error
	AddComponent(ctx context.Context, id int64, in ComponentInput) (BOM, error)
	RemoveComponent(ctx context.Context, id int64, lineNo int) (BOM, error)
	Activate(ctx context.Context, id int64) (BOM, error)
}

type Handler struct {
	logger  *slog.Logger
	service bomService
}

func NewHandler(logger *slog.Logger, service bomService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type listResponse struct {
	Items []BOM `json:"items"`
	Total int   `json:"total"`
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/bom", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAnyRole(shared.RoleAdmin, shared.RoleManager, shared.RoleOperator))
			r.Post("/", h.create)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.delete)
			r.Post("/{id}/components", h.addComponent)
			r.Delete("/{id}/components/{lineNo}", h.removeComponent)
		})
		r.With(auth.RequireAnyRole(shared.RoleAdmin, shared.RoleManager)).Post("/{id}/activate", h.activate)
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

func (h *Handler) addComponent(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in ComponentInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	b, err := h.service.AddComponent(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) removeComponent(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	lineNo, err := httpx.IDParam(r, "lineNo")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	b, err := h.service.RemoveComponent(r.Context(), id, int(lineNo))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	b, err := h.service.Activate(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}
