package users

import (
	"strings"
	"time"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// User represents a login account inside one tenant.
type User struct {
	ID           int64      `json:"id"`
	TenantID     int64      `json:"tenant_id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	PasswordHash string     `json:"-"`
}

// CreateUserInput is the payload for a new user.
type CreateUserInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=200"`
	Role     string `json:"role" validate:"required,oneof=platform_admin admin manager operator viewer"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UpdateUserInput patches a user; nil fields are left unchanged.
type UpdateUserInput struct {
	Name     *string `json:"name" validate:"omitempty,max=200"`
	Role     *string `json:"role" validate:"omitempty,oneof=platform_admin admin manager operator viewer"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
