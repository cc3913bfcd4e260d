package tenants

import (
	"context"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "tenant"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	List(ctx context.Context, params shared.ListParams) ([]Tenant, error)
	Get(ctx context.Context, id int64) (Tenant, error)
	GetByCode(ctx context.Context, code string) (Tenant, error)
	Create(ctx context.Context, in CreateInput) (Tenant, error)
	Update(ctx context.Context, t Tenant) (Tenant, error)
	Delete(ctx context.Context, id int64) error
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service manages tenants. It is not tenant-scoped; callers must be platform admins.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs tenant service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create registers a tenant with status active.
func (s *Service) Create(ctx context.Context, in CreateInput) (Tenant, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return Tenant{}, err
	}
	created, err := s.repo.Create(ctx, in)
	if err != nil {
		return Tenant{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

// List returns tenants ordered by code.
func (s *Service) List(ctx context.Context, params shared.ListParams) ([]Tenant, error) {
	return s.repo.List(ctx, params)
}

// Get returns one tenant.
func (s *Service) Get(ctx context.Context, id int64) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// GetByCode resolves a tenant from its login code.
func (s *Service) GetByCode(ctx context.Context, code string) (Tenant, error) {
	return s.repo.GetByCode(ctx, strings.ToLower(strings.TrimSpace(code)))
}

// ResolveActive returns the id of an active tenant by code.
// Unknown codes yield ErrNotFound and suspended tenants ErrState.
func (s *Service) ResolveActive(ctx context.Context, code string) (int64, error) {
	t, err := s.GetByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	if t.Status != StatusActive {
		return 0, shared.StateError("tenant %s is suspended", t.Code)
	}
	return t.ID, nil
}

// Update renames or (un)suspends a tenant.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Tenant, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	next := current
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Tenant{}, shared.Invalid("tenant name must not be blank")
		}
		next.Name = name
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return Tenant{}, shared.Invalid("unknown tenant status %q", *in.Status)
		}
		next.Status = *in.Status
	}
	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return Tenant{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, current, updated)
	return updated, nil
}

// Delete removes a suspended tenant and everything it owns.
func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != StatusSuspended {
		return shared.StateError("tenant must be suspended before deletion")
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
