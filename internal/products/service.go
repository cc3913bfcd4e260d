package products

import (
	"context"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "product"

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

type Service struct {
	repo  Repository
	audit AuditPort
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	filters.Limit = shared.ClampLimit(filters.Limit)
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.Invalid("invalid product id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, form ProductForm) (Product, error) {
	product := Product{
		Code:         strings.TrimSpace(form.Code),
		Name:         strings.TrimSpace(form.Name),
		Unit:         strings.TrimSpace(form.Unit),
		StandardCost: form.StandardCost,
		IsActive:     true,
	}
	if product.Unit == "" {
		product.Unit = defaultUnit
	}
	if form.IsActive != nil {
		product.IsActive = *form.IsActive
	}
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	next := current
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Unit != nil {
		next.Unit = strings.TrimSpace(*patch.Unit)
		if next.Unit == "" {
			next.Unit = defaultUnit
		}
	}
	if patch.StandardCost != nil {
		next.StandardCost = *patch.StandardCost
	}
	if patch.IsActive != nil {
		next.IsActive = *patch.IsActive
	}
	if err := s.validate(next); err != nil {
		return Product{}, err
	}
	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, current, updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, id, audit.ActionDelete, current, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, id int64, action audit.Action, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Event(entityType, id, action, oldValue, newValue))
}
