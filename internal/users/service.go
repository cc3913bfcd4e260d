package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "user"

// RepositoryPort defines data access methods for users. All calls are tenant scoped.
type RepositoryPort interface {
	List(ctx context.Context, params shared.ListParams) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, u User) (User, error)
	Update(ctx context.Context, u User) (User, error)
	Delete(ctx context.Context, id int64) error
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}

// TenantResolver maps a tenant code to an active tenant id.
type TenantResolver interface {
	ResolveActive(ctx context.Context, code string) (int64, error)
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service handles user business logic.
type Service struct {
	repo    RepositoryPort
	tenants TenantResolver
	audit   AuditPort
	cost    int
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, tenants TenantResolver, audit AuditPort) *Service {
	return &Service{repo: repo, tenants: tenants, audit: audit, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithHashCost overrides the bcrypt cost.
func (s *Service) WithHashCost(cost int) *Service {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.cost = cost
	}
	return s
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// List returns users of the caller's tenant.
func (s *Service) List(ctx context.Context, params shared.ListParams) ([]User, error) {
	return s.repo.List(ctx, params)
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a user in the caller's tenant.
func (s *Service) Create(ctx context.Context, in CreateUserInput) (User, error) {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return User{}, err
	}
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" {
		return User{}, shared.Invalid("email and name required")
	}
	if !shared.ValidRole(in.Role) {
		return User{}, shared.Invalid("unknown role %q", in.Role)
	}
	if err := checkPlatformRole(ctx, in.Role); err != nil {
		return User{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}
	created, err := s.repo.Create(ctx, User{
		TenantID:     tenantID,
		Email:        email,
		Name:         name,
		Role:         in.Role,
		IsActive:     true,
		PasswordHash: hash,
	})
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

// Update changes profile, role, activation or password.
func (s *Service) Update(ctx context.Context, id int64, in UpdateUserInput) (User, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := checkPlatformRole(ctx, current.Role); err != nil {
		return User{}, err
	}
	next := current
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return User{}, shared.Invalid("name must not be blank")
		}
		next.Name = name
	}
	if in.Role != nil {
		if !shared.ValidRole(*in.Role) {
			return User{}, shared.Invalid("unknown role %q", *in.Role)
		}
		if err := checkPlatformRole(ctx, *in.Role); err != nil {
			return User{}, err
		}
		next.Role = *in.Role
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}
	if in.Password != nil {
		hash, err := s.hash(*in.Password)
		if err != nil {
			return User{}, err
		}
		next.PasswordHash = hash
	}
	if current.ID == shared.UserFromContext(ctx) && (!next.IsActive || next.Role != current.Role) {
		return User{}, shared.StateError("cannot deactivate or change role of own account")
	}
	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, current, updated)
	return updated, nil
}

// Delete removes a user other than the caller.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id == shared.UserFromContext(ctx) {
		return shared.StateError("cannot delete own account")
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := checkPlatformRole(ctx, current.Role); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, id, audit.ActionDelete, current, nil)
	return nil
}

// Authenticate verifies credentials and returns the actor to issue a token for.
// Unknown tenants, unknown emails, inactive accounts and wrong passwords all yield
// shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, tenantCode, email, password string) (shared.Actor, error) {
	tenantID, err := s.tenants.ResolveActive(ctx, tenantCode)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrState) {
			return shared.Actor{}, shared.ErrInvalidCredentials
		}
		return shared.Actor{}, err
	}
	actor, _ := shared.ActorFromContext(ctx)
	actor.TenantID = tenantID
	ctx = shared.ContextWithActor(ctx, actor)

	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Actor{}, shared.ErrInvalidCredentials
		}
		return shared.Actor{}, err
	}
	if !user.IsActive {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}

	actor.UserID = user.ID
	actor.Role = user.Role
	ctx = shared.ContextWithActor(ctx, actor)
	if err := s.repo.TouchLogin(ctx, user.ID, s.now()); err != nil {
		return shared.Actor{}, err
	}
	s.recordAudit(ctx, user.ID, audit.ActionLogin, nil, nil)
	return actor, nil
}

// Logout records the end of the caller's session. Tokens are stateless, so nothing is revoked.
func (s *Service) Logout(ctx context.Context) error {
	userID := shared.UserFromContext(ctx)
	if userID == 0 {
		return shared.ErrUnauthorized
	}
	s.recordAudit(ctx, userID, audit.ActionLogout, nil, nil)
	return nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", shared.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", shared.Invalid("password too long")
		}
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) recordAudit(ctx context.Context, id int64, action audit.Action, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Event(entityType, id, action, oldValue, newValue))
}

// checkPlatformRole keeps tenant admins from granting, editing or revoking the
// platform admin role.
func checkPlatformRole(ctx context.Context, role string) error {
	if role != shared.RolePlatformAdmin {
		return nil
	}
	actor, ok := shared.ActorFromContext(ctx)
	if ok && actor.Role == shared.RolePlatformAdmin {
		return nil
	}
	return fmt.Errorf("%w: only a platform admin can manage platform admins", shared.ErrForbidden)
}
