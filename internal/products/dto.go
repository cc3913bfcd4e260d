package products

import "github.com/shopspring/decimal"

// ProductForm is the create payload.
type ProductForm struct {
	Code         string          `json:"code" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	Unit         string          `json:"unit" validate:"omitempty,max=16"`
	StandardCost decimal.Decimal `json:"standard_cost"`
	IsActive     *bool           `json:"is_active"`
}

// ProductPatch is the update payload; nil fields are left unchanged.
type ProductPatch struct {
	Name         *string          `json:"name" validate:"omitempty,max=200"`
	Unit         *string          `json:"unit" validate:"omitempty,max=16"`
	StandardCost *decimal.Decimal `json:"standard_cost"`
	IsActive     *bool            `json:"is_active"`
}
