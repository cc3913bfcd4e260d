package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "order"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters) ([]Order, int, error)
	Get(ctx context.Context, id int64) (Order, error)
}

// PeriodGuard rejects dates inside closed accounting periods.
type PeriodGuard interface {
	EnsureOpen(ctx context.Context, date time.Time) error
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service coordinates sales order workflows.
type Service struct {
	repo  RepositoryPort
	guard PeriodGuard
	audit AuditPort
}

// NewService constructs the order service.
func NewService(repo RepositoryPort, guard PeriodGuard, audit AuditPort) *Service {
	return &Service{repo: repo, guard: guard, audit: audit}
}

// Create numbers and stores a draft order.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	customer := strings.TrimSpace(in.CustomerName)
	if customer == "" {
		return Order{}, shared.Invalid("customer name required")
	}
	if in.OrderDate.IsZero() {
		return Order{}, shared.Invalid("order date required")
	}
	if in.TaxRate.IsNegative() {
		return Order{}, shared.Invalid("tax rate must not be negative")
	}
	items, err := buildItems(in.Items)
	if err != nil {
		return Order{}, err
	}
	p := Order{
		CustomerName: customer,
		OrderDate:    in.OrderDate,
		Status:       StatusDraft,
		TaxRate:      in.TaxRate,
		Notes:        in.Notes,
		Items:        items,
	}
	if userID := shared.UserFromContext(ctx); userID != 0 {
		p.CreatedBy = &userID
	}
	applyTotals(&p)

	var created Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.ensureOpen(ctx, p.OrderDate); err != nil {
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
		return Order{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

// List returns order headers matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	filters.Limit = shared.ClampLimit(filters.Limit)
	return s.repo.List(ctx, filters)
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// Update edits a draft order and recomputes its totals.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Order, error) {
	var before, after Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != StatusDraft {
			return shared.StateError("only draft orders can be edited")
		}
		next := before
		if in.CustomerName != nil {
			next.CustomerName = strings.TrimSpace(*in.CustomerName)
			if next.CustomerName == "" {
				return shared.Invalid("customer name required")
			}
		}
		if in.OrderDate != nil && !in.OrderDate.Equal(before.OrderDate.Time) {
			if in.OrderDate.IsZero() {
				return shared.Invalid("order date required")
			}
			if err := s.ensureOpen(ctx, before.OrderDate); err != nil {
				return err
			}
			if err := s.ensureOpen(ctx, *in.OrderDate); err != nil {
				return err
			}
			next.OrderDate = *in.OrderDate
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
		return Order{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, before, after)
	return after, nil
}

// Delete removes a draft order.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var before Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != StatusDraft {
			return shared.StateError("only draft orders can be deleted")
		}
		if err := s.ensureOpen(ctx, before.OrderDate); err != nil {
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

// UpdateStatus moves an order along draft→confirmed→shipped→delivered or cancels it.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (Order, error) {
	var before, after Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(before.Status, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatus, before.Status, status)
		}
		if err := s.ensureOpen(ctx, before.OrderDate); err != nil {
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
		return Order{}, err
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
