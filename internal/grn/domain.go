// Package grn records goods received against ordered purchases.
package grn

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/purchases"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status is the inspection outcome of a receipt.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAccepted          Status = "accepted"
	StatusPartiallyAccepted Status = "partially_accepted"
	StatusRejected          Status = "rejected"
)

// Valid reports whether the status is known.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPartiallyAccepted, StatusRejected:
		return true
	}
	return false
}

// Accepts reports whether goods enter stock under this status.
func (s Status) Accepts() bool {
	return s == StatusAccepted || s == StatusPartiallyAccepted
}

// GRN is a goods received note.
type GRN struct {
	ID                 int64           `json:"id"`
	TenantID           int64           `json:"tenant_id"`
	Number             string          `json:"number"`
	PurchaseID         int64           `json:"purchase_id"`
	ReceivedDate       shared.Date     `json:"received_date"`
	Status             Status          `json:"status"`
	TotalAcceptedQty   decimal.Decimal `json:"total_accepted_qty"`
	TotalRejectedQty   decimal.Decimal `json:"total_rejected_qty"`
	TotalAcceptedValue decimal.Decimal `json:"total_accepted_value"`
	TotalRejectedValue decimal.Decimal `json:"total_rejected_value"`
	Notes              string          `json:"notes"`
	ReceivedBy         *int64          `json:"received_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Items              []Item          `json:"items,omitempty"`
}

// Item is one received line.
type Item struct {
	ID             int64           `json:"id"`
	LineNo         int             `json:"line_no"`
	PurchaseItemID *int64          `json:"purchase_item_id,omitempty"`
	Description    string          `json:"description"`
	OrderedQty     decimal.Decimal `json:"ordered_qty"`
	ReceivedQty    decimal.Decimal `json:"received_qty"`
	AcceptedQty    decimal.Decimal `json:"accepted_qty"`
	RejectedQty    decimal.Decimal `json:"rejected_qty"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

// PurchaseRef is the slice of a purchase a receipt needs.
type PurchaseRef struct {
	ID           int64
	Status       purchases.Status
	PurchaseDate shared.Date
	Items        []purchases.Item
}

func (p PurchaseRef) item(id int64) (purchases.Item, bool) {
	for _, it := range p.Items {
		if it.ID == id {
			return it, true
		}
	}
	return purchases.Item{}, false
}

// ItemInput is a received line. Ordered quantity, price and description
// default from the referenced purchase item.
type ItemInput struct {
	PurchaseItemID *int64           `json:"purchase_item_id" validate:"omitempty,gt=0"`
	Description    string           `json:"description" validate:"max=500"`
	ReceivedQty    decimal.Decimal  `json:"received_qty"`
	AcceptedQty    decimal.Decimal  `json:"accepted_qty"`
	RejectedQty    decimal.Decimal  `json:"rejected_qty"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
}

// CreateInput is the payload for a new receipt.
type CreateInput struct {
	PurchaseID   int64       `json:"purchase_id" validate:"required,gt=0"`
	ReceivedDate shared.Date `json:"received_date"`
	Notes        string      `json:"notes" validate:"max=2000"`
	Items        []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// UpdateInput edits a pending receipt.
type UpdateInput struct {
	ReceivedDate *shared.Date `json:"received_date"`
	Notes        *string      `json:"notes" validate:"omitempty,max=2000"`
}

// LineDecision splits a received line into accepted and rejected quantities.
type LineDecision struct {
	LineNo      int             `json:"line_no" validate:"required,gt=0"`
	AcceptedQty decimal.Decimal `json:"accepted_qty"`
	RejectedQty decimal.Decimal `json:"rejected_qty"`
}

// StatusInput settles a receipt, optionally revising line decisions.
type StatusInput struct {
	Status Status         `json:"status" validate:"required"`
	Lines  []LineDecision `json:"lines" validate:"omitempty,dive"`
}

// ListFilters narrows receipt listings.
type ListFilters struct {
	PurchaseID int64
	Status     Status
	Limit      int
	Offset     int
}

func checkQuantities(lineNo int, received, accepted, rejected decimal.Decimal) error {
	if received.IsNegative() || accepted.IsNegative() || rejected.IsNegative() {
		return shared.Invalid("line %d: quantities must not be negative", lineNo)
	}
	if !received.Equal(accepted.Add(rejected)) {
		return shared.Invalid("line %d: received %s must equal accepted %s plus rejected %s",
			lineNo, received, accepted, rejected)
	}
	return nil
}

func buildItems(ref PurchaseRef, inputs []ItemInput) ([]Item, error) {
	if len(inputs) == 0 {
		return nil, shared.Invalid("at least one item required")
	}
	items := make([]Item, 0, len(inputs))
	for i, in := range inputs {
		lineNo := i + 1
		item := Item{
			LineNo:         lineNo,
			PurchaseItemID: in.PurchaseItemID,
			Description:    strings.TrimSpace(in.Description),
			ReceivedQty:    in.ReceivedQty,
			AcceptedQty:    in.AcceptedQty,
			RejectedQty:    in.RejectedQty,
		}
		if in.PurchaseItemID != nil {
			src, ok := ref.item(*in.PurchaseItemID)
			if !ok {
				return nil, shared.Invalid("line %d: purchase item %d not on purchase %d", lineNo, *in.PurchaseItemID, ref.ID)
			}
			item.OrderedQty = src.Quantity
			item.UnitPrice = src.UnitPrice
			if item.Description == "" {
				item.Description = src.Description
			}
		}
		if in.UnitPrice != nil {
			if in.UnitPrice.IsNegative() {
				return nil, shared.Invalid("line %d: unit price must not be negative", lineNo)
			}
			item.UnitPrice = *in.UnitPrice
		}
		if item.Description == "" {
			return nil, shared.Invalid("line %d: description required", lineNo)
		}
		if err := checkQuantities(lineNo, item.ReceivedQty, item.AcceptedQty, item.RejectedQty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// applyDecisions overwrites accepted/rejected splits by line number.
func applyDecisions(items []Item, decisions []LineDecision) ([]Item, error) {
	out := make([]Item, len(items))
	copy(out, items)
	index := make(map[int]int, len(out))
	for i, it := range out {
		index[it.LineNo] = i
	}
	for _, d := range decisions {
		i, ok := index[d.LineNo]
		if !ok {
			return nil, shared.Invalid("line %d not on receipt", d.LineNo)
		}
		if err := checkQuantities(d.LineNo, out[i].ReceivedQty, d.AcceptedQty, d.RejectedQty); err != nil {
			return nil, err
		}
		out[i].AcceptedQty = d.AcceptedQty
		out[i].RejectedQty = d.RejectedQty
	}
	return out, nil
}

// applyTotals sums accepted and rejected quantities and values from items.
func applyTotals(g *GRN) {
	acceptedQty, rejectedQty := decimal.Zero, decimal.Zero
	acceptedValue, rejectedValue := decimal.Zero, decimal.Zero
	for _, it := range g.Items {
		acceptedQty = acceptedQty.Add(it.AcceptedQty)
		rejectedQty = rejectedQty.Add(it.RejectedQty)
		acceptedValue = acceptedValue.Add(shared.LineAmount(it.AcceptedQty, it.UnitPrice))
		rejectedValue = rejectedValue.Add(shared.LineAmount(it.RejectedQty, it.UnitPrice))
	}
	g.TotalAcceptedQty = acceptedQty
	g.TotalRejectedQty = rejectedQty
	g.TotalAcceptedValue = acceptedValue
	g.TotalRejectedValue = rejectedValue
}

// checkOutcome matches the settled status against line totals.
func checkOutcome(g GRN) error {
	switch g.Status {
	case StatusAccepted:
		if g.TotalRejectedQty.IsPositive() {
			return shared.Invalid("accepted receipt cannot carry rejected quantity")
		}
	case StatusRejected:
		if g.TotalAcceptedQty.IsPositive() {
			return shared.Invalid("rejected receipt cannot carry accepted quantity")
		}
	case StatusPartiallyAccepted:
		if !g.TotalAcceptedQty.IsPositive() || !g.TotalRejectedQty.IsPositive() {
			return shared.Invalid("partially accepted receipt needs both accepted and rejected quantity")
		}
	}
	return nil
}
