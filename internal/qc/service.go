package qc

import (
	"context"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/products"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	inspectionEntity = "qc_inspection"
	ncrEntity        = "ncr"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListInspections(ctx context.Context, filters InspectionFilters) ([]Inspection, int, error)
	GetInspection(ctx context.Context, id int64) (Inspection, error)
	ListNCRs(ctx context.Context, filters NCRFilters) ([]NCR, int, error)
	GetNCR(ctx context.Context, id int64) (NCR, error)
}

// ProductLookup resolves products within the caller's tenant.
type ProductLookup interface {
	Get(ctx context.Context, id int64) (products.Product, error)
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service manages inspections and NCRs.
type Service struct {
	repo     RepositoryPort
	products ProductLookup
	audit    AuditPort
	now      func() time.Time
}

// NewService constructs the QC service.
func NewService(repo RepositoryPort, products ProductLookup, audit AuditPort) *Service {
	return &Service{repo: repo, products: products, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInspection records an inspection. The result is derived from the
// quantities unless given.
func (s *Service) CreateInspection(ctx context.Context, in InspectionInput) (Inspection, error) {
	if in.InspectionDate.IsZero() {
		return Inspection{}, shared.Invalid("inspection_date required")
	}
	if err := checkQuantities(in.InspectedQty, in.PassedQty, in.FailedQty); err != nil {
		return Inspection{}, err
	}
	result := in.Result
	if result == "" {
		result = DeriveResult(in.PassedQty, in.FailedQty)
	}
	if err := checkResult(result, in.FailedQty); err != nil {
		return Inspection{}, err
	}
	if _, err := s.products.Get(ctx, in.ProductID); err != nil {
		return Inspection{}, err
	}
	insp := Inspection{
		GRNID:          in.GRNID,
		ProductID:      in.ProductID,
		InspectionDate: in.InspectionDate,
		InspectedQty:   in.InspectedQty,
		PassedQty:      in.PassedQty,
		FailedQty:      in.FailedQty,
		Result:         result,
		Notes:          strings.TrimSpace(in.Notes),
	}
	if userID := shared.UserFromContext(ctx); userID != 0 {
		insp.InspectorID = &userID
	}

	var created Inspection
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if insp.GRNID != nil {
			if err := tx.EnsureGRN(ctx, *insp.GRNID); err != nil {
				return err
			}
		}
		var err error
		if insp.Number, err = tx.NextNumber(ctx, shared.PrefixQC); err != nil {
			return err
		}
		created, err = tx.InsertInspection(ctx, insp)
		return err
	})
	if err != nil {
		return Inspection{}, err
	}
	s.recordAudit(ctx, inspectionEntity, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

func (s *Service) ListInspections(ctx context.Context, filters InspectionFilters) ([]Inspection, int, error) {
	filters.Limit = shared.ClampLimit(filters.Limit)
	return s.repo.ListInspections(ctx, filters)
}

func (s *Service) GetInspection(ctx context.Context, id int64) (Inspection, error) {
	return s.repo.GetInspection(ctx, id)
}

// UpdateInspection patches an inspection and re-derives its result when the
// quantities change without an explicit result.
func (s *Service) UpdateInspection(ctx context.Context, id int64, in InspectionUpdate) (Inspection, error) {
	var before, after Inspection
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadInspection(ctx, id)
		if err != nil {
			return err
		}
		next := before
		if in.InspectionDate != nil {
			if in.InspectionDate.IsZero() {
				return shared.Invalid("inspection_date required")
			}
			next.InspectionDate = *in.InspectionDate
		}
		quantities := in.InspectedQty != nil || in.PassedQty != nil || in.FailedQty != nil
		if in.InspectedQty != nil {
			next.InspectedQty = *in.InspectedQty
		}
		if in.PassedQty != nil {
			next.PassedQty = *in.PassedQty
		}
		if in.FailedQty != nil {
			next.FailedQty = *in.FailedQty
		}
		if err := checkQuantities(next.InspectedQty, next.PassedQty, next.FailedQty); err != nil {
			return err
		}
		switch {
		case in.Result != nil:
			next.Result = *in.Result
		case quantities:
			next.Result = DeriveResult(next.PassedQty, next.FailedQty)
		}
		if err := checkResult(next.Result, next.FailedQty); err != nil {
			return err
		}
		if in.Notes != nil {
			next.Notes = strings.TrimSpace(*in.Notes)
		}
		after, err = tx.UpdateInspection(ctx, next)
		return err
	})
	if err != nil {
		return Inspection{}, err
	}
	s.recordAudit(ctx, inspectionEntity, id, audit.ActionUpdate, before, after)
	return after, nil
}

// DeleteInspection removes an inspection that has no NCRs.
func (s *Service) DeleteInspection(ctx context.Context, id int64) error {
	var before Inspection
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadInspection(ctx, id)
		if err != nil {
			return err
		}
		return tx.DeleteInspection(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, inspectionEntity, id, audit.ActionDelete, before, nil)
	return nil
}

// RaiseNCR opens an NCR for a failed or conditional inspection.
func (s *Service) RaiseNCR(ctx context.Context, inspectionID int64, in RaiseInput) (NCR, error) {
	return s.createNCR(ctx, NCRInput{InspectionID: &inspectionID, Severity: in.Severity, Description: in.Description})
}

// CreateNCR opens an NCR, optionally tied to an inspection.
func (s *Service) CreateNCR(ctx context.Context, in NCRInput) (NCR, error) {
	return s.createNCR(ctx, in)
}

func (s *Service) createNCR(ctx context.Context, in NCRInput) (NCR, error) {
	if !in.Severity.Valid() {
		return NCR{}, shared.Invalid("unknown severity %q", in.Severity)
	}
	n := NCR{
		InspectionID: in.InspectionID,
		Severity:     in.Severity,
		Description:  strings.TrimSpace(in.Description),
		Status:       NCROpen,
	}
	if n.Description == "" {
		return NCR{}, shared.Invalid("description required")
	}
	if userID := shared.UserFromContext(ctx); userID != 0 {
		n.RaisedBy = &userID
	}

	var created NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if n.InspectionID != nil {
			insp, err := tx.LoadInspection(ctx, *n.InspectionID)
			if err != nil {
				return err
			}
			if insp.Result == ResultPass {
				return shared.StateError("inspection %s passed; no NCR can be raised", insp.Number)
			}
		}
		var err error
		if n.Number, err = tx.NextNumber(ctx, shared.PrefixNCR); err != nil {
			return err
		}
		created, err = tx.InsertNCR(ctx, n)
		return err
	})
	if err != nil {
		return NCR{}, err
	}
	s.recordAudit(ctx, ncrEntity, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

func (s *Service) ListNCRs(ctx context.Context, filters NCRFilters) ([]NCR, int, error) {
	filters.Limit = shared.ClampLimit(filters.Limit)
	return s.repo.ListNCRs(ctx, filters)
}

func (s *Service) GetNCR(ctx context.Context, id int64) (NCR, error) {
	return s.repo.GetNCR(ctx, id)
}

// UpdateNCR edits an NCR that is not closed.
func (s *Service) UpdateNCR(ctx context.Context, id int64, in NCRUpdate) (NCR, error) {
	var before, after NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadNCR(ctx, id)
		if err != nil {
			return err
		}
		if before.Status == NCRClosed {
			return shared.StateError("NCR %s is closed", before.Number)
		}
		next := before
		if in.Severity != nil {
			if !in.Severity.Valid() {
				return shared.Invalid("unknown severity %q", *in.Severity)
			}
			next.Severity = *in.Severity
		}
		if in.Description != nil {
			next.Description = strings.TrimSpace(*in.Description)
			if next.Description == "" {
				return shared.Invalid("description required")
			}
		}
		if in.CorrectiveAction != nil {
			next.CorrectiveAction = strings.TrimSpace(*in.CorrectiveAction)
		}
		after, err = tx.UpdateNCR(ctx, next)
		return err
	})
	if err != nil {
		return NCR{}, err
	}
	s.recordAudit(ctx, ncrEntity, id, audit.ActionUpdate, before, after)
	return after, nil
}

// UpdateNCRStatus moves an NCR along open → investigating → closed.
func (s *Service) UpdateNCRStatus(ctx context.Context, id int64, in NCRStatusInput) (NCR, error) {
	var before, after NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadNCR(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(before.Status, in.Status) {
			return shared.StateError("NCR %s cannot move from %s to %s", before.Number, before.Status, in.Status)
		}
		next := before
		next.Status = in.Status
		if in.CorrectiveAction != nil {
			next.CorrectiveAction = strings.TrimSpace(*in.CorrectiveAction)
		}
		if next.Status == NCRClosed {
			if next.CorrectiveAction == "" {
				return shared.Invalid("corrective_action required to close NCR %s", before.Number)
			}
			at := s.now().UTC()
			next.ClosedAt = &at
		}
		after, err = tx.UpdateNCR(ctx, next)
		return err
	})
	if err != nil {
		return NCR{}, err
	}
	s.recordAudit(ctx, ncrEntity, id, audit.ActionUpdate,
		map[string]NCRStatus{"status": before.Status}, map[string]NCRStatus{"status": after.Status})
	return after, nil
}

// DeleteNCR removes an NCR that is still open.
func (s *Service) DeleteNCR(ctx context.Context, id int64) error {
	var before NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadNCR(ctx, id)
		if err != nil {
			return err
		}
		if before.Status != NCROpen {
			return shared.StateError("NCR %s is %s; only open NCRs can be deleted", before.Number, before.Status)
		}
		return tx.DeleteNCR(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, ncrEntity, id, audit.ActionDelete, before, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, entity string, id int64, action audit.Action, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Event(entity, id, action, oldValue, newValue))
}
