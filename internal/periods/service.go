package periods

import (
	"context"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "accounting_period"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]Period, error)
	Get(ctx context.Context, id int64) (Period, error)
	FindOpenContaining(ctx context.Context, date time.Time) (*Period, error)
	HasClosedContaining(ctx context.Context, date time.Time) (bool, error)
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service orchestrates the accounting period lifecycle.
type Service struct {
	repo  RepositoryPort
	guard *Guard
	audit AuditPort
	now   func() time.Time
}

// NewService constructs a Service instance. A nil guard falls back to an uncached one.
func NewService(repo RepositoryPort, guard *Guard, audit AuditPort) *Service {
	if guard == nil {
		guard = NewGuard(repo, nil, nil)
	}
	return &Service{repo: repo, guard: guard, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Guard returns the closed-period guard shared with posting services.
func (s *Service) Guard() *Guard {
	return s.guard
}

// Create inserts a new open period after checking overlap.
func (s *Service) Create(ctx context.Context, in CreatePeriodInput) (Period, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var created Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockTenant(ctx); err != nil {
			return err
		}
		existing, err := tx.FindOverlapping(ctx, in.StartDate.Time, in.EndDate.Time)
		if err != nil {
			return err
		}
		if existing != nil {
			return OverlapError(*existing)
		}
		created, err = tx.Insert(ctx, in)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

// FindAll lists the tenant's periods ordered by start date descending.
func (s *Service) FindAll(ctx context.Context) ([]Period, error) {
	return s.repo.List(ctx)
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// GetActivePeriod returns the open period containing date, or nil.
func (s *Service) GetActivePeriod(ctx context.Context, date time.Time) (*Period, error) {
	return s.repo.FindOpenContaining(ctx, shared.DateOnly(date))
}

// IsDateInClosedPeriod reports whether a closed period contains date.
func (s *Service) IsDateInClosedPeriod(ctx context.Context, date time.Time) (bool, error) {
	return s.guard.IsDateInClosedPeriod(ctx, date)
}

// Close marks an open period closed by userID.
func (s *Service) Close(ctx context.Context, id, userID int64) (Period, error) {
	if userID <= 0 {
		return Period{}, shared.Invalid("closing user required")
	}
	var before, after Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.IsClosed() {
			return ErrAlreadyClosed
		}
		after, err = tx.SetClosed(ctx, id, userID, s.now())
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.guard.Invalidate(ctx)
	s.recordAudit(ctx, id, audit.ActionPeriodClose, before, after)
	return after, nil
}

// Reopen moves a closed period back to open.
func (s *Service) Reopen(ctx context.Context, id, userID int64) (Period, error) {
	if userID <= 0 {
		return Period{}, shared.Invalid("reopening user required")
	}
	var before, after Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !before.IsClosed() {
			return ErrNotClosed
		}
		after, err = tx.SetReopened(ctx, id, userID, s.now())
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.guard.Invalidate(ctx)
	s.recordAudit(ctx, id, audit.ActionPeriodReopen, before, after)
	return after, nil
}

// Update changes name or notes of a period that is not closed.
func (s *Service) Update(ctx context.Context, id int64, in UpdatePeriodInput) (Period, error) {
	var before, after Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.IsClosed() {
			return ErrPeriodClosed
		}
		name, notes := before.Name, before.Notes
		if in.Name != nil {
			name = strings.TrimSpace(*in.Name)
			if name == "" {
				return shared.Invalid("period name must not be blank")
			}
		}
		if in.Notes != nil {
			notes = *in.Notes
		}
		after, err = tx.UpdateDetails(ctx, id, name, notes)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, before, after)
	return after, nil
}

// Delete removes an open period that has no posted transactions in its range.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var before Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.IsClosed() {
			return ErrPeriodClosed
		}
		posted, err := tx.CountPosted(ctx, before.StartDate.Time, before.EndDate.Time)
		if err != nil {
			return err
		}
		if posted > 0 {
			return ErrHasTransactions
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.guard.Invalidate(ctx)
	s.recordAudit(ctx, id, audit.ActionDelete, before, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, id int64, action audit.Action, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Event(entityType, id, action, oldValue, newValue))
}
