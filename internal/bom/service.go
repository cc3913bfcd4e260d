package bom

import (
	"context"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/products"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "bom"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters) ([]BOM, int, error)
	Get(ctx context.Context, id int64) (BOM, error)
}

// ProductLookup resolves products within the caller's tenant.
type ProductLookup interface {
	Get(ctx context.Context, id int64) (products.Product, error)
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service manages bills of materials.
type Service struct {
	repo     RepositoryPort
	products ProductLookup
	audit    AuditPort
}

// NewService constructs the BOM service.
func NewService(repo RepositoryPort, products ProductLookup, audit AuditPort) *Service {
	return &Service{repo: repo, products: products, audit: audit}
}

// Create stores a draft BOM for a product.
func (s *Service) Create(ctx context.Context, in CreateInput) (BOM, error) {
	if _, err := s.products.Get(ctx, in.ProductID); err != nil {
		return BOM{}, err
	}
	components, err := s.buildComponents(ctx, in.ProductID, in.Components, 1)
	if err != nil {
		return BOM{}, err
	}
	b := BOM{
		ProductID:   in.ProductID,
		Version:     in.Version,
		Status:      StatusDraft,
		Description: strings.TrimSpace(in.Description),
		Components:  components,
	}
	if userID := shared.UserFromContext(ctx); userID != 0 {
		b.CreatedBy = &userID
	}
	applyTotal(&b)

	var created BOM
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if b.Version == 0 {
			if b.Version, err = tx.NextVersion(ctx, b.ProductID); err != nil {
				return err
			}
		}
		if b.Number, err = tx.NextNumber(ctx); err != nil {
			return err
		}
		created, err = tx.Insert(ctx, b)
		return err
	})
	if err != nil {
		return BOM{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

// buildComponents resolves component products and prices lines from firstLine.
func (s *Service) buildComponents(ctx context.Context, parentID int64, inputs []ComponentInput, firstLine int) ([]Component, error) {
	out := make([]Component, 0, len(inputs))
	for i, in := range inputs {
		lineNo := firstLine + i
		if err := checkComponent(lineNo, in); err != nil {
			return nil, err
		}
		if in.ProductID == parentID {
			return nil, shared.Invalid("component %d: a product cannot consume itself", lineNo)
		}
		p, err := s.products.Get(ctx, in.ProductID)
		if err != nil {
			return nil, err
		}
		c := Component{
			LineNo:             lineNo,
			ComponentProductID: p.ID,
			Quantity:           in.Quantity,
			Unit:               strings.TrimSpace(in.Unit),
			ScrapPercent:       in.ScrapPercent,
			UnitCost:           p.StandardCost,
		}
		if c.Unit == "" {
			c.Unit = p.Unit
		}
		if in.UnitCost != nil {
			c.UnitCost = *in.UnitCost
		}
		c.ExtendedCost = ExtendedCost(c.Quantity, c.ScrapPercent, c.UnitCost)
		out = append(out, c)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]BOM, int, error) {
	filters.Limit = shared.ClampLimit(filters.Limit)
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (BOM, error) {
	return s.repo.Get(ctx, id)
}

// Update edits a draft BOM.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (BOM, error) {
	var before, after BOM
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = loadDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		next := before
		if in.Description != nil {
			next.Description = strings.TrimSpace(*in.Description)
		}
		if in.Components != nil {
			components, err := s.buildComponents(ctx, before.ProductID, in.Components, 1)
			if err != nil {
				return err
			}
			if next.Components, err = tx.ReplaceComponents(ctx, id, components); err != nil {
				return err
			}
		}
		applyTotal(&next)
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		after.Components = next.Components
		return nil
	})
	if err != nil {
		return BOM{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, before, after)
	return after, nil
}

// Delete removes a draft or obsolete BOM.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var before BOM
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status == StatusActive {
			return shared.StateError("active BOM %s cannot be deleted", before.Number)
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, id, audit.ActionDelete, before, nil)
	return nil
}

// AddComponent appends a component to a draft BOM.
func (s *Service) AddComponent(ctx context.Context, id int64, in ComponentInput) (BOM, error) {
	var before, after BOM
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = loadDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		lineNo := 1
		for _, c := range before.Components {
			if c.LineNo >= lineNo {
				lineNo = c.LineNo + 1
			}
		}
		built, err := s.buildComponents(ctx, before.ProductID, []ComponentInput{in}, lineNo)
		if err != nil {
			return err
		}
		added, err := tx.InsertComponent(ctx, id, built[0])
		if err != nil {
			return err
		}
		next := before
		next.Components = append(append([]Component{}, before.Components...), added)
		applyTotal(&next)
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		after.Components = next.Components
		return nil
	})
	if err != nil {
		return BOM{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, before, after)
	return after, nil
}

// RemoveComponent drops a line from a draft BOM. Remaining lines keep their numbers.
func (s *Service) RemoveComponent(ctx context.Context, id int64, lineNo int) (BOM, error) {
	var before, after BOM
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = loadDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		next := before
		next.Components = make([]Component, 0, len(before.Components))
		for _, c := range before.Components {
			if c.LineNo != lineNo {
				next.Components = append(next.Components, c)
			}
		}
		if len(next.Components) == len(before.Components) {
			return shared.NotFound("bom component", lineNo)
		}
		if err := tx.DeleteComponent(ctx, id, lineNo); err != nil {
			return err
		}
		applyTotal(&next)
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		after.Components = next.Components
		return nil
	})
	if err != nil {
		return BOM{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, before, after)
	return after, nil
}

// Activate makes a draft BOM the active version of its product and
// obsoletes the version it replaces.
func (s *Service) Activate(ctx context.Context, id int64) (BOM, error) {
	var before, after BOM
	var replaced *BOM
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = loadDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(before.Components) == 0 {
			return shared.Invalid("BOM %s has no components", before.Number)
		}
		replaced, err = tx.ObsoleteActive(ctx, before.ProductID)
		if err != nil {
			return err
		}
		next := before
		next.Status = StatusActive
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		after.Components = before.Components
		return nil
	})
	if err != nil {
		return BOM{}, err
	}
	if replaced != nil {
		s.recordAudit(ctx, replaced.ID, audit.ActionUpdate,
			map[string]Status{"status": StatusActive}, map[string]Status{"status": StatusObsolete})
	}
	s.recordAudit(ctx, id, audit.ActionApprove,
		map[string]Status{"status": before.Status}, map[string]Status{"status": after.Status})
	return after, nil
}

func loadDraft(ctx context.Context, tx TxRepository, id int64) (BOM, error) {
	b, err := tx.LoadForUpdate(ctx, id)
	if err != nil {
		return BOM{}, err
	}
	if b.Status != StatusDraft {
		return BOM{}, shared.StateError("BOM %s is %s; only drafts can change", b.Number, b.Status)
	}
	return b, nil
}

func (s *Service) recordAudit(ctx context.Context, id int64, action audit.Action, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Event(entityType, id, action, oldValue, newValue))
}
