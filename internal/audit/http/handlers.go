package audithttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// AuditService defines the business contract behind the audit endpoints.
type AuditService interface {
	GetLogs(ctx context.Context, f audit.Filters) (audit.Page, error)
	GetEntityHistory(ctx context.Context, tenantID *int64, entityType, entityID string) ([]audit.Entry, error)
	GetStats(ctx context.Context, tenantID *int64) (audit.Stats, error)
	CleanupTenantLogs(ctx context.Context, tenantID int64, retentionDays int) (int64, error)
	Export(ctx context.Context, f audit.Filters, w io.Writer) error
}

// Logger accepts manual entries.
type Logger interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Handler serves the audit log endpoints.
type Handler struct {
	logger        *slog.Logger
	service       AuditService
	recorder      Logger
	retentionDays int
}

// NewHandler constructs the audit handler.
func NewHandler(logger *slog.Logger, service AuditService, recorder Logger, retentionDays int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, recorder: recorder, retentionDays: retentionDays}
}

type recordRequest struct {
	EntityType string          `json:"entity_type" validate:"required,max=64"`
	EntityID   string          `json:"entity_id" validate:"required,max=64"`
	Action     audit.Action    `json:"action" validate:"required"`
	OldValue   json.RawMessage `json:"old_value"`
	NewValue   json.RawMessage `json:"new_value"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page, err := h.service.GetLogs(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if !req.Action.Valid() {
		httpx.RespondError(w, h.logger, shared.Invalid("unknown action %q", req.Action))
		return
	}
	h.recorder.Log(r.Context(), audit.Entry{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Action:     req.Action,
		OldValue:   req.OldValue,
		NewValue:   req.NewValue,
	})
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entries, err := h.service.GetEntityHistory(r.Context(), &tenantID, chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	stats, err := h.service.GetStats(r.Context(), &tenantID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-logs.csv\"")
	if err := h.service.Export(r.Context(), filters, w); err != nil {
		h.logger.Error("export audit logs", slog.Any("error", err))
	}
}

func (h *Handler) handleCleanupDefault(w http.ResponseWriter, r *http.Request) {
	h.cleanup(w, r, h.retentionDays)
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(chi.URLParam(r, "retentionDays"))
	if err != nil {
		httpx.RespondError(w, h.logger, shared.Invalid("retention days must be a number"))
		return
	}
	h.cleanup(w, r, days)
}

// cleanup only ever touches the caller's tenant; the all-tenant purge belongs
// to the retention job.
func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request, days int) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	deleted, err := h.service.CleanupTenantLogs(r.Context(), tenantID, days)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("audit cleanup", slog.Int64("tenant_id", tenantID), slog.Int("retention_days", days), slog.Int64("deleted", deleted))
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": deleted, "retention_days": days})
}

// parseFilters reads query filters; results are always confined to the caller's tenant.
func parseFilters(r *http.Request) (audit.Filters, error) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		return audit.Filters{}, err
	}
	q := r.URL.Query()
	f := audit.Filters{
		TenantID:   &tenantID,
		EntityType: strings.TrimSpace(q.Get("entity_type")),
		EntityID:   strings.TrimSpace(q.Get("entity_id")),
		Action:     audit.Action(strings.TrimSpace(q.Get("action"))),
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return audit.Filters{}, shared.Invalid("invalid user_id")
		}
		f.UserID = &id
	}
	if raw := q.Get("from"); raw != "" {
		from, err := parseTime(raw)
		if err != nil {
			return audit.Filters{}, err
		}
		f.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := parseTime(raw)
		if err != nil {
			return audit.Filters{}, err
		}
		// a bare date means the whole day
		if !strings.Contains(raw, "T") {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = to
	}
	params := shared.ParseListParams(q)
	f.Limit, f.Offset = params.Limit, params.Offset
	return f, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := shared.ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	return d.Time, nil
}
