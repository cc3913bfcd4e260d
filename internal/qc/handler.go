package qc

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type qcService interface {
	CreateInspection(ctx context.Context, in InspectionInput) (Inspection, error)
	ListInspections(ctx context.Context, filters InspectionFilters) ([]Inspection, int, error)
	GetInspection(ctx context.Context, id int64) (Inspection, error)
	UpdateInspection(ctx context.Context, id int64, in InspectionUpdate) (Inspection, error)
	DeleteInspection(ctx context.Context, id int64) error
	RaiseNCR(ctx context.Context, inspectionID int64, in RaiseInput) (NCR, error)
	CreateNCR(ctx context.Context, in NCRInput) (NCR, error)
	ListNCRs(ctx context.Context, filters NCRFilters) ([]NCR, int, error)
	GetNCR(ctx context.Context, id int64) (NCR, error)
	UpdateNCR(ctx context.Context, id int64, in NCRUpdate) (NCR, error)
	UpdateNCRStatus(ctx context.Context, id int64, in NCRStatusInput) (NCR, error)
	DeleteNCR(ctx context.Context, id int64) error
}

type Handler struct {
	logger  *slog.Logger
	service qcService
}

func NewHandler(logger *slog.Logger, service qcService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type inspectionList struct {
	Items []Inspection `json:"items"`
	Total int          `json:"total"`
}

type ncrList struct {
	Items []NCR `json:"items"`
	Total int   `json:"total"`
}

// MountRoutes registers /qc/inspections and /qc/ncrs.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/qc", func(r chi.Router) {
		r.Get("/inspections", h.listInspections)
		r.Get("/inspections/{id}", h.getInspection)
		r.Get("/ncrs", h.listNCRs)
		r.Get("/ncrs/{id}", h.getNCR)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAnyRole(shared.RoleAdmin, shared.RoleManager, shared.RoleOperator))
			r.Post("/inspections", h.createInspection)
			r.Put("/inspections/{id}", h.updateInspection)
			r.Delete("/inspections/{id}", h.deleteInspection)
			r.Post("/inspections/{id}/ncr", h.raiseNCR)
			r.Post("/ncrs", h.createNCR)
			r.Put("/ncrs/{id}", h.updateNCR)
			r.Put("/ncrs/{id}/status", h.updateNCRStatus)
			r.Delete("/ncrs/{id}", h.deleteNCR)
		})
	})
}

func (h *Handler) listInspections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := shared.ParseListParams(q)
	filters := InspectionFilters{Result: Result(q.Get("result")), Limit: params.Limit, Offset: params.Offset}
	var err error
	if filters.GRNID, err = int64Param(q, "grn_id"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filters.ProductID, err = int64Param(q, "product_id"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if raw := q.Get("from"); raw != "" {
		from, err := shared.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		filters.From = &from.Time
	}
	if raw := q.Get("to"); raw != "" {
		to, err := shared.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		filters.To = &to.Time
	}
	items, total, err := h.service.ListInspections(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inspectionList{Items: items, Total: total})
}

func (h *Handler) getInspection(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	insp, err := h.service.GetInspection(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, insp)
}

func (h *Handler) createInspection(w http.ResponseWriter, r *http.Request) {
	var in InspectionInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	insp, err := h.service.CreateInspection(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, insp)
}

func (h *Handler) updateInspection(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in InspectionUpdate
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	insp, err := h.service.UpdateInspection(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, insp)
}

func (h *Handler) deleteInspection(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeleteInspection(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) raiseNCR(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in RaiseInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	n, err := h.service.RaiseNCR(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, n)
}

func (h *Handler) listNCRs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := shared.ParseListParams(q)
	filters := NCRFilters{
		Status:   NCRStatus(q.Get("status")),
		Severity: Severity(q.Get("severity")),
		Limit:    params.Limit,
		Offset:   params.Offset,
	}
	var err error
	if filters.InspectionID, err = int64Param(q, "inspection_id"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	items, total, err := h.service.ListNCRs(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ncrList{Items: items, Total: total})
}

func (h *Handler) getNCR(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	n, err := h.service.GetNCR(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) createNCR(w http.ResponseWriter, r *http.Request) {
	var in NCRInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	n, err := h.service.CreateNCR(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, n)
}

func (h *Handler) updateNCR(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in NCRUpdate
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	n, err := h.service.UpdateNCR(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) updateNCRStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in NCRStatusInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	n, err := h.service.UpdateNCRStatus(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) deleteNCR(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeleteNCR(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w)
}

func int64Param(q url.Values, name string) (int64, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, shared.Invalid("invalid %s %q", name, raw)
	}
	return v, nil
}
