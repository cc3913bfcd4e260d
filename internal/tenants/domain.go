package tenants

import (
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status enumerates tenant lifecycle states.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Valid reports whether the status is known.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

// Tenant is an isolated customer organisation.
type Tenant struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateInput is the payload for a new tenant.
type CreateInput struct {
	Code string `json:"code" validate:"required,max=32"`
	Name string `json:"name" validate:"required,max=200"`
}

// Normalize trims and lower-cases the code.
func (in CreateInput) Normalize() CreateInput {
	in.Code = strings.ToLower(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	return in
}

// Validate checks business rules not covered by tags.
func (in CreateInput) Validate() error {
	if in.Code == "" || in.Name == "" {
		return shared.Invalid("tenant code and name required")
	}
	if strings.ContainsAny(in.Code, " /") {
		return shared.Invalid("tenant code must not contain spaces or slashes")
	}
	return nil
}

// UpdateInput patches a tenant; nil fields are left unchanged.
type UpdateInput struct {
	Name   *string `json:"name" validate:"omitempty,max=200"`
	Status *Status `json:"status"`
}
