// Package bom maintains versioned bills of materials and their rolled-up cost.
package bom

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status is the lifecycle of a BOM version.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusObsolete Status = "obsolete"
)

// BOM is one version of the component list of a product.
type BOM struct {
	ID          int64           `json:"id"`
	TenantID    int64           `json:"tenant_id"`
	Number      string          `json:"number"`
	ProductID   int64           `json:"product_id"`
	Version     int             `json:"version"`
	Status      Status          `json:"status"`
	Description string          `json:"description"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	CreatedBy   *int64          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Components  []Component     `json:"components,omitempty"`
}

// Component is one input line of a BOM.
type Component struct {
	ID                 int64           `json:"id"`
	LineNo             int             `json:"line_no"`
	ComponentProductID int64           `json:"component_product_id"`
	Quantity           decimal.Decimal `json:"quantity"`
	Unit               string          `json:"unit"`
	ScrapPercent       decimal.Decimal `json:"scrap_percent"`
	UnitCost           decimal.Decimal `json:"unit_cost"`
	ExtendedCost       decimal.Decimal `json:"extended_cost"`
}

// ComponentInput adds a component. Unit and unit cost default from the
// component product.
type ComponentInput struct {
	ProductID    int64            `json:"product_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Unit         string           `json:"unit" validate:"max=16"`
	ScrapPercent decimal.Decimal  `json:"scrap_percent"`
	UnitCost     *decimal.Decimal `json:"unit_cost"`
}

// CreateInput stores a draft BOM. A zero Version takes the next free one.
type CreateInput struct {
	ProductID   int64            `json:"product_id" validate:"required,gt=0"`
	Version     int              `json:"version" validate:"omitempty,min=1"`
	Description string           `json:"description" validate:"max=2000"`
	Components  []ComponentInput `json:"components" validate:"omitempty,dive"`
}

// UpdateInput patches a draft BOM. A non-nil Components replaces every line.
type UpdateInput struct {
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Components  []ComponentInput `json:"components" validate:"omitempty,dive"`
}

type ListFilters struct {
	ProductID int64
	Status    Status
	Limit     int
	Offset    int
}

// ExtendedCost returns quantity × (1 + scrap/100) × unit cost.
func ExtendedCost(qty, scrapPercent, unitCost decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(scrapPercent.Div(shared.Hundred))
	return qty.Mul(factor).Mul(unitCost).Round(4)
}

func checkComponent(lineNo int, in ComponentInput) error {
	if in.ProductID <= 0 {
		return shared.Invalid("component %d: product required", lineNo)
	}
	if !in.Quantity.IsPositive() {
		return shared.Invalid("component %d: quantity must be positive", lineNo)
	}
	if in.ScrapPercent.IsNegative() || in.ScrapPercent.GreaterThan(shared.Hundred) {
		return shared.Invalid("component %d: scrap percent must be between 0 and 100", lineNo)
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return shared.Invalid("component %d: unit cost must not be negative", lineNo)
	}
	return nil
}

func applyTotal(b *BOM) {
	total := decimal.Zero
	for _, c := range b.Components {
		total = total.Add(c.ExtendedCost)
	}
	b.TotalCost = total
}
