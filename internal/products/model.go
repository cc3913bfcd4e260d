package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a stock item referenced by BOMs, orders and purchases.
type Product struct {
	ID           int64           `json:"id"`
	TenantID     int64           `json:"tenant_id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	StandardCost decimal.Decimal `json:"standard_cost"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search   string
	IsActive *bool
	Limit    int
	Offset   int
}
