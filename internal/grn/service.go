package grn

import (
	"context"
	"time"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/purchases"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "grn"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters) ([]GRN, int, error)
	Get(ctx context.Context, id int64) (GRN, error)
}

// PeriodGuard rejects dates inside closed accounting periods.
type PeriodGuard interface {
	EnsureOpen(ctx context.Context, date time.Time) error
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service coordinates goods receipt.
type Service struct {
	repo  RepositoryPort
	guard PeriodGuard
	audit AuditPort
}

// NewService constructs the receipt service.
func NewService(repo RepositoryPort, guard PeriodGuard, audit AuditPort) *Service {
	return &Service{repo: repo, guard: guard, audit: audit}
}

// Create records a pending receipt against an ordered purchase.
func (s *Service) Create(ctx context.Context, in CreateInput) (GRN, error) {
	if in.PurchaseID <= 0 {
		return GRN{}, shared.Invalid("purchase required")
	}
	if in.ReceivedDate.IsZero() {
		return GRN{}, shared.Invalid("received date required")
	}
	var created GRN
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.ensureOpen(ctx, in.ReceivedDate); err != nil {
			return err
		}
		ref, err := tx.LoadPurchase(ctx, in.PurchaseID)
		if err != nil {
			return err
		}
		if ref.Status != purchases.StatusOrdered && ref.Status != purchases.StatusReceived {
			return shared.StateError("purchase %d is %s; only ordered or received purchases can be received", ref.ID, ref.Status)
		}
		items, err := buildItems(ref, in.Items)
		if err != nil {
			return err
		}
		g := GRN{
			PurchaseID:   ref.ID,
			ReceivedDate: in.ReceivedDate,
			Status:       StatusPending,
			Notes:        in.Notes,
			Items:        items,
		}
		if userID := shared.UserFromContext(ctx); userID != 0 {
			g.ReceivedBy = &userID
		}
		applyTotals(&g)
		g.Number, err = tx.NextNumber(ctx)
		if err != nil {
			return err
		}
		created, err = tx.Insert(ctx, g)
		return err
	})
	if err != nil {
		return GRN{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

// List returns receipt headers matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]GRN, int, error) {
	filters.Limit = shared.ClampLimit(filters.Limit)
	return s.repo.List(ctx, filters)
}

// Get returns a receipt with its items.
func (s *Service) Get(ctx context.Context, id int64) (GRN, error) {
	return s.repo.Get(ctx, id)
}

// Update edits the header of a pending receipt.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (GRN, error) {
	var before, after GRN
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != StatusPending {
			return shared.StateError("only pending receipts can be edited")
		}
		next := before
		if in.ReceivedDate != nil && !in.ReceivedDate.Equal(before.ReceivedDate.Time) {
			if in.ReceivedDate.IsZero() {
				return shared.Invalid("received date required")
			}
			if err := s.ensureOpen(ctx, before.ReceivedDate); err != nil {
				return err
			}
			if err := s.ensureOpen(ctx, *in.ReceivedDate); err != nil {
				return err
			}
			next.ReceivedDate = *in.ReceivedDate
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		after.Items = before.Items
		return nil
	})
	if err != nil {
		return GRN{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, before, after)
	return after, nil
}

// Delete removes a pending receipt.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var before GRN
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != StatusPending {
			return shared.StateError("only pending receipts can be deleted")
		}
		if err := s.ensureOpen(ctx, before.ReceivedDate); err != nil {
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

// UpdateStatus settles a pending receipt. Line decisions, when given,
// replace the accepted/rejected split before totals are recomputed.
// Accepting goods marks the purchase received.
func (s *Service) UpdateStatus(ctx context.Context, id int64, in StatusInput) (GRN, error) {
	if !in.Status.Valid() || in.Status == StatusPending {
		return GRN{}, shared.Invalid("status must be accepted, partially_accepted or rejected")
	}
	var before, after GRN
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != StatusPending {
			return shared.StateError("receipt %s already %s", before.Number, before.Status)
		}
		if err := s.ensureOpen(ctx, before.ReceivedDate); err != nil {
			return err
		}
		next := before
		next.Status = in.Status
		if len(in.Lines) > 0 {
			if next.Items, err = applyDecisions(before.Items, in.Lines); err != nil {
				return err
			}
		}
		applyTotals(&next)
		if err := checkOutcome(next); err != nil {
			return err
		}
		if len(in.Lines) > 0 {
			if err := tx.UpdateLines(ctx, id, next.Items); err != nil {
				return err
			}
		}
		after, err = tx.Settle(ctx, next)
		if err != nil {
			return err
		}
		after.Items = next.Items
		if !in.Status.Accepts() {
			return nil
		}
		ref, err := tx.LoadPurchase(ctx, before.PurchaseID)
		if err != nil {
			return err
		}
		if ref.Status != purchases.StatusOrdered {
			return nil
		}
		// Receiving moves the purchase too, so its own date must be open.
		if err := s.ensureOpen(ctx, ref.PurchaseDate); err != nil {
			return err
		}
		return tx.MarkPurchaseReceived(ctx, ref.ID)
	})
	if err != nil {
		return GRN{}, err
	}
	action := audit.ActionApprove
	if in.Status == StatusRejected {
		action = audit.ActionReject
	}
	s.recordAudit(ctx, id, action, before, after)
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
