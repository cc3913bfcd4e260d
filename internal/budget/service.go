package budget

import (
	"context"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "budget"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters) ([]Budget, int, error)
	Get(ctx context.Context, id int64) (Budget, error)
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service manages budgets and their variance against actuals.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the budget service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create stores a draft budget.
func (s *Service) Create(ctx context.Context, in CreateInput) (Budget, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Budget{}, shared.Invalid("name required")
	}
	if in.FiscalYear < 1900 || in.FiscalYear > 9999 {
		return Budget{}, shared.Invalid("fiscal year out of range")
	}
	lines, err := buildLines(in.Lines)
	if err != nil {
		return Budget{}, err
	}
	b := Budget{
		Name:       name,
		FiscalYear: in.FiscalYear,
		Department: strings.TrimSpace(in.Department),
		Status:     StatusDraft,
		Notes:      in.Notes,
		Lines:      lines,
	}
	if userID := shared.UserFromContext(ctx); userID != 0 {
		b.CreatedBy = &userID
	}
	applyTotals(&b)

	var created Budget
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx)
		if err != nil {
			return err
		}
		b.Number = number
		created, err = tx.Insert(ctx, b)
		return err
	})
	if err != nil {
		return Budget{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Budget, int, error) {
	filters.Limit = shared.ClampLimit(filters.Limit)
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Budget, error) {
	return s.repo.Get(ctx, id)
}

// Update edits a draft budget.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Budget, error) {
	var before, after Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != StatusDraft {
			return shared.StateError("budget %s is %s; only drafts can be edited", before.Number, before.Status)
		}
		next := before
		if in.Name != nil {
			next.Name = strings.TrimSpace(*in.Name)
			if next.Name == "" {
				return shared.Invalid("name required")
			}
		}
		if in.FiscalYear != nil {
			next.FiscalYear = *in.FiscalYear
		}
		if in.Department != nil {
			next.Department = strings.TrimSpace(*in.Department)
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		if in.Lines != nil {
			if next.Lines, err = buildLines(in.Lines); err != nil {
				return err
			}
			if next.Lines, err = tx.ReplaceLines(ctx, id, next.Lines); err != nil {
				return err
			}
		}
		applyTotals(&next)
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		after.Lines = next.Lines
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, before, after)
	return after, nil
}

// Delete removes a draft or rejected budget.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var before Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != StatusDraft && before.Status != StatusRejected {
			return shared.StateError("budget %s is %s and cannot be deleted", before.Number, before.Status)
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, id, audit.ActionDelete, before, nil)
	return nil
}

// UpdateActual records the actual spend of one line and refreshes totals.
// Drafts and approved budgets accept actuals.
func (s *Service) UpdateActual(ctx context.Context, budgetID, lineID int64, in ActualInput) (Budget, error) {
	if in.ActualAmount.IsNegative() {
		return Budget{}, shared.Invalid("actual amount must not be negative")
	}
	var before, after Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, budgetID)
		if err != nil {
			return err
		}
		if before.Status != StatusDraft && before.Status != StatusApproved {
			return shared.StateError("budget %s is %s; actuals are frozen", before.Number, before.Status)
		}
		next := before
		next.Lines = make([]Line, len(before.Lines))
		copy(next.Lines, before.Lines)
		idx := -1
		for i, l := range next.Lines {
			if l.ID == lineID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return shared.NotFound("budget line", lineID)
		}
		next.Lines[idx].ActualAmount = shared.RoundMoney(in.ActualAmount)
		next.Lines[idx].refresh()
		if err := tx.UpdateLine(ctx, next.Lines[idx]); err != nil {
			return err
		}
		applyTotals(&next)
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		after.Lines = next.Lines
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.recordAudit(ctx, budgetID, audit.ActionUpdate, before, after)
	return after, nil
}

// Approve moves a draft budget to approved.
func (s *Service) Approve(ctx context.Context, id int64) (Budget, error) {
	return s.transition(ctx, id, StatusDraft, StatusApproved, audit.ActionApprove)
}

// Reject moves a draft budget to rejected.
func (s *Service) Reject(ctx context.Context, id int64) (Budget, error) {
	return s.transition(ctx, id, StatusDraft, StatusRejected, audit.ActionReject)
}

// Close freezes an approved budget.
func (s *Service) Close(ctx context.Context, id int64) (Budget, error) {
	return s.transition(ctx, id, StatusApproved, StatusClosed, audit.ActionUpdate)
}

func (s *Service) transition(ctx context.Context, id int64, from, to Status, action audit.Action) (Budget, error) {
	var before, after Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != from {
			return shared.StateError("budget %s is %s, expected %s", before.Number, before.Status, from)
		}
		next := before
		next.Status = to
		if to == StatusApproved {
			userID := shared.UserFromContext(ctx)
			at := s.now().UTC()
			next.ApprovedBy = &userID
			next.ApprovedAt = &at
		}
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		after.Lines = before.Lines
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.recordAudit(ctx, id, action, map[string]Status{"status": before.Status}, map[string]Status{"status": after.Status})
	return after, nil
}

// VarianceReport ranks the lines of a budget by variance.
func (s *Service) VarianceReport(ctx context.Context, id int64, th Thresholds) ([]ReportRow, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return RankVariance(b.Lines, th), nil
}

func (s *Service) recordAudit(ctx context.Context, id int64, action audit.Action, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Event(entityType, id, action, oldValue, newValue))
}
