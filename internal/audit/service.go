package audit

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const topUsersLimit = 10

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Store
	List(ctx context.Context, f Filters) ([]Entry, int, error)
	ListAll(ctx context.Context, f Filters) ([]Entry, error)
	History(ctx context.Context, tenantID *int64, entityType, entityID string) ([]Entry, error)
	Stats(ctx context.Context, tenantID *int64, topN int) (Stats, error)
	DeleteBefore(ctx context.Context, tenantID *int64, cutoff time.Time) (int64, error)
}

// Service runs audit queries and retention.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs the audit service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetLogs returns a page of logs, newest first. Limit is clamped to [1, 500], default 50.
func (s *Service) GetLogs(ctx context.Context, f Filters) (Page, error) {
	f, err := normalizeFilters(f)
	if err != nil {
		return Page{}, err
	}
	f.Limit = shared.ClampLimit(f.Limit)
	logs, total, err := s.repo.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Logs: logs, Total: total}, nil
}

// GetEntityHistory returns every entry for one entity in chronological order.
func (s *Service) GetEntityHistory(ctx context.Context, tenantID *int64, entityType, entityID string) ([]Entry, error) {
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return nil, shared.Invalid("entity type and id required")
	}
	return s.repo.History(ctx, tenantID, entityType, entityID)
}

// GetStats returns totals, counts per action and the top users.
func (s *Service) GetStats(ctx context.Context, tenantID *int64) (Stats, error) {
	return s.repo.Stats(ctx, tenantID, topUsersLimit)
}

// CleanupOldLogs deletes logs of every tenant older than retentionDays and
// reports how many were removed. Only the scheduled retention job calls it.
func (s *Service) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	return s.cleanup(ctx, nil, retentionDays)
}

// CleanupTenantLogs deletes one tenant's logs older than retentionDays.
func (s *Service) CleanupTenantLogs(ctx context.Context, tenantID int64, retentionDays int) (int64, error) {
	if tenantID <= 0 {
		return 0, shared.ErrNoTenant
	}
	return s.cleanup(ctx, &tenantID, retentionDays)
}

func (s *Service) cleanup(ctx context.Context, tenantID *int64, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, shared.Invalid("retention days must be at least 1, got %d", retentionDays)
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	return s.repo.DeleteBefore(ctx, tenantID, cutoff)
}

// Record persists a manually submitted entry synchronously.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.EntityType) == "" || strings.TrimSpace(entry.EntityID) == "" {
		return shared.Invalid("entity type and id required")
	}
	if !entry.Action.Valid() {
		return shared.Invalid("unknown action %q", entry.Action)
	}
	return s.repo.Insert(ctx, entry)
}

// Export writes every matching log as CSV.
func (s *Service) Export(ctx context.Context, f Filters, w io.Writer) error {
	f, err := normalizeFilters(f)
	if err != nil {
		return err
	}
	logs, err := s.repo.ListAll(ctx, f)
	if err != nil {
		return err
	}
	return WriteCSV(w, logs)
}

func normalizeFilters(f Filters) (Filters, error) {
	if f.Action != "" && !f.Action.Valid() {
		return f, shared.Invalid("unknown action %q", f.Action)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return f, shared.Invalid("from must not be after to")
	}
	if f.Offset < 0 {
		return f, shared.Invalid("offset must not be negative")
	}
	f.EntityType = strings.TrimSpace(f.EntityType)
	f.EntityID = strings.TrimSpace(f.EntityID)
	return f, nil
}
