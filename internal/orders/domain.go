package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status is the sales order lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// ErrInvalidStatus reports a transition the order lifecycle does not allow.
var ErrInvalidStatus = fmt.Errorf("%w: invalid order status transition", shared.ErrState)

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusShipped || to == StatusCancelled
	case StatusShipped:
		return to == StatusDelivered
	}
	return false
}

// Order is a customer sales order with its line items.
type Order struct {
	ID           int64           `json:"id"`
	TenantID     int64           `json:"tenant_id"`
	Number       string          `json:"number"`
	CustomerName string          `json:"customer_name"`
	OrderDate shared.Date     `json:"order_date"`
	Status       Status          `json:"status"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Notes        string          `json:"notes"`
	CreatedBy    *int64          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Items        []Item          `json:"items,omitempty"`
}

// Item is one order line.
type Item struct {
	ID          int64           `json:"id"`
	LineNo      int             `json:"line_no"`
	ProductID   *int64          `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// ItemInput is a requested order line.
type ItemInput struct {
	ProductID   *int64          `json:"product_id" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// CreateInput is the payload for a new order.
type CreateInput struct {
	CustomerName string          `json:"customer_name" validate:"required,max=200"`
	OrderDate shared.Date     `json:"order_date"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Notes        string          `json:"notes" validate:"max=2000"`
	Items        []ItemInput     `json:"items" validate:"required,min=1,dive"`
}

// UpdateInput patches a draft order. A non-nil Items replaces every line.
type UpdateInput struct {
	CustomerName *string          `json:"customer_name" validate:"omitempty,max=200"`
	OrderDate *shared.Date     `json:"order_date"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	Notes        *string          `json:"notes" validate:"omitempty,max=2000"`
	Items        []ItemInput      `json:"items" validate:"omitempty,min=1,dive"`
}

// StatusInput requests a status transition.
type StatusInput struct {
	Status Status `json:"status" validate:"required"`
}

// ListFilters narrows order listings.
type ListFilters struct {
	Status   Status
	From     *time.Time
	To       *time.Time
	Customer string
	Limit    int
	Offset   int
}

// buildItems validates inputs and computes line amounts, numbering lines from 1.
func buildItems(inputs []ItemInput) ([]Item, error) {
	if len(inputs) == 0 {
		return nil, shared.Invalid("at least one item required")
	}
	items := make([]Item, 0, len(inputs))
	for i, in := range inputs {
		desc := strings.TrimSpace(in.Description)
		if desc == "" && in.ProductID == nil {
			return nil, shared.Invalid("item %d: description or product required", i+1)
		}
		if !in.Quantity.IsPositive() {
			return nil, shared.Invalid("item %d: quantity must be positive", i+1)
		}
		if in.UnitPrice.IsNegative() {
			return nil, shared.Invalid("item %d: unit price must not be negative", i+1)
		}
		items = append(items, Item{
			LineNo:      i + 1,
			ProductID:   in.ProductID,
			Description: desc,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Amount:      shared.LineAmount(in.Quantity, in.UnitPrice),
		})
	}
	return items, nil
}

// applyTotals recomputes header amounts from items.
func applyTotals(p *Order) {
	amounts := make([]decimal.Decimal, 0, len(p.Items))
	for _, item := range p.Items {
		amounts = append(amounts, item.Amount)
	}
	totals := shared.ComputeTotals(amounts, p.TaxRate)
	p.Subtotal = totals.Subtotal
	p.TaxAmount = totals.Tax
	p.TotalAmount = totals.Total
}

func productIDs(items []Item) []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		if _, ok := seen[*item.ProductID]; ok {
			continue
		}
		seen[*item.ProductID] = struct{}{}
		ids = append(ids, *item.ProductID)
	}
	return ids
}
