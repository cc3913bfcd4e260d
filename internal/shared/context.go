package shared

import "context"

// User roles carried in the access token.
const (
	RolePlatformAdmin = "platform_admin"
	RoleAdmin         = "admin"
	RoleManager       = "manager"
	RoleOperator      = "operator"
	RoleViewer        = "viewer"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RolePlatformAdmin, RoleAdmin, RoleManager, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// Actor identifies who is calling and on behalf of which tenant.
type Actor struct {
	TenantID  int64
	UserID    int64
	Role      string
	IP        string
	UserAgent string
}

// HasRole reports whether the actor carries the role. A platform admin also
// holds the tenant admin role.
func (a Actor) HasRole(role string) bool {
	if a.Role == RolePlatformAdmin && role == RoleAdmin {
		return true
	}
	return a.Role == role
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// TenantFromContext returns the tenant of the request or ErrNoTenant.
func TenantFromContext(ctx context.Context) (int64, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.TenantID <= 0 {
		return 0, ErrNoTenant
	}
	return actor.TenantID, nil
}

// UserFromContext returns the calling user id, zero when anonymous.
func UserFromContext(ctx context.Context) int64 {
	actor, _ := ActorFromContext(ctx)
	return actor.UserID
}
