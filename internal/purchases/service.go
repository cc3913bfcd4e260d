package purchases

import (
	"context"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "purchase"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters) ([]Purchase, int, error)
	Get(ctx context.Context, id int64) (Purchase, error)
}

// PeriodGuard rejects dates inside closed accounting periods.
type PeriodGuard interface {
	EnsureOpen(ctx context.Context, date time.Time) error
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service coordinates purchase workflows.
type Service struct {
	repo  RepositoryPort
	guard PeriodGuard
	audit AuditPort
}

// NewService constructs the purchase service.
func NewService(repo RepositoryPort, guard PeriodGuard, audit AuditPort) *Service {
	return &Service{repo: repo, guard: guard, audit: audit}
}

// Create numbers and stores a draft purchase.
func (s *Service) Create(ctx context.Context, in CreateInput) (Purchase, error) {
	supplier := strings.TrimSpace(in.SupplierName)
	if supplier == "" {
		return Purchase{}, shared.Invalid("supplier name required")
	}
	if in.PurchaseDate.IsZero() {
		return Purchase{}, shared.Invalid("purchase date required")
	}
	if in.TaxRate.IsNegative() {
		return Purchase{}, shared.Invalid("tax rate must not be negative")
	}
	items, err := buildItems(in.Items)
	if err != nil {
		return Purchase{}, err
	}
	p := Purchase{
		SupplierName: supplier,
		PurchaseDate: in.PurchaseDate,
		Status:       StatusDraft,
		TaxRate:      in.TaxRate,
		Notes:        in.Notes,
		Items:        items,
	}
	if userID := shared.UserFromContext(ctx); userID != 0 {
		p.CreatedBy = &userID
	}
	applyTotals(&p)

	var created Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.ensureOpen(ctx, p.PurchaseDate); err != nil {
			return err
		}
		if err := tx.EnsureProducts(ctx, productIDs(p.Items)); err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx)
		if err != nil {
			return err
		}
		p.Number = number
		created, err = tx.Insert(ctx, p)
		return err
	})
	if err != nil {
		return Purchase{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

// List returns purchase headers matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Purchase, int, error) {
	filters.Limit = shared.ClampLimit(filters.Limit)
	return s.repo.List(ctx, filters)
}

// Get returns a purchase with its items.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.Get(ctx, id)
}

// Update edits a draft purchase and recomputes its totals.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Purchase, error) {
	var before, after Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != StatusDraft {
			return shared.StateError("only draft purchases can be edited")
		}
		next := before
		if in.SupplierName != nil {
			next.SupplierName = strings.TrimSpace(*in.SupplierName)
			if next.SupplierName == "" {
				return shared.Invalid("supplier name required")
			}
		}
		if in.PurchaseDate != nil && !in.PurchaseDate.Equal(before.PurchaseDate.Time) {
			if in.PurchaseDate.IsZero() {
				return shared.Invalid("purchase date required")
			}
			if err := s.ensureOpen(ctx, before.PurchaseDate); err != nil {
				return err
			}
			if err := s.ensureOpen(ctx, *in.PurchaseDate); err != nil {
				return err
			}
			next.PurchaseDate = *in.PurchaseDate
		}
		if in.TaxRate != nil {
			if in.TaxRate.IsNegative() {
				return shared.Invalid("tax rate must not be negative")
			}
			next.TaxRate = *in.TaxRate
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		replaceItems := in.Items != nil
		if replaceItems {
			items, err := buildItems(in.Items)
			if err != nil {
				return err
			}
			if err := tx.EnsureProducts(ctx, productIDs(items)); err != nil {
				return err
			}
			next.Items = items
		}
		applyTotals(&next)
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		if replaceItems {
			after.Items, err = tx.ReplaceItems(ctx, id, next.Items)
			return err
		}
		after.Items = before.Items
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, before, after)
	return after, nil
}

// Delete removes a draft purchase.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var before Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != StatusDraft {
			return shared.StateError("only draft purchases can be deleted")
		}
		if err := s.ensureOpen(ctx, before.PurchaseDate); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, id, audit.ActionDelete, before, nil)
	return nil
}

// UpdateStatus moves a purchase along draft→ordered→received or cancels it.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (Purchase, error) {
	var before, after Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(before.Status, status) {
			return shared.StateError("cannot move purchase from %s to %s", before.Status, status)
		}
		if err := s.ensureOpen(ctx, before.PurchaseDate); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		after = before
		after.Status = status
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, map[string]Status{"status": before.Status}, map[string]Status{"status": after.Status})
	return after, nil
}

func (s *Service) ensureOpen(ctx context.Context, date shared.Date) error {
	if s.guard == nil {
		return nil
	}
	return s.guard.EnsureOpen(ctx, date.Time)
}

func (s *Service) recordAudit(ctx context.Context, id int64, action audit.Action, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Event(entityType, id, action, oldValue, newValue))
}
