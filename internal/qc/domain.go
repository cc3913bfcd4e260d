// Package qc records quality inspections of received or produced goods and
// the non-conformance reports raised from them.
package qc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Result is the outcome of an inspection.
type Result string

const (
	ResultPass        Result = "pass"
	ResultFail        Result = "fail"
	ResultConditional Result = "conditional"
)

// Valid reports whether r is a known result.
func (r Result) Valid() bool {
	switch r {
	case ResultPass, ResultFail, ResultConditional:
		return true
	}
	return false
}

// Severity grades a non-conformance.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// NCRStatus is the lifecycle of a non-conformance report.
type NCRStatus string

const (
	NCROpen          NCRStatus = "open"
	NCRInvestigating NCRStatus = "investigating"
	NCRClosed        NCRStatus = "closed"
)

// CanTransition reports whether an NCR may move from one status to another.
func CanTransition(from, to NCRStatus) bool {
	switch from {
	case NCROpen:
		return to == NCRInvestigating
	case NCRInvestigating:
		return to == NCRClosed
	}
	return false
}

// Inspection is one quality check of a product quantity.
type Inspection struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	Number         string          `json:"number"`
	GRNID          *int64          `json:"grn_id,omitempty"`
	ProductID      int64           `json:"product_id"`
	InspectionDate shared.Date     `json:"inspection_date"`
	InspectedQty   decimal.Decimal `json:"inspected_qty"`
	PassedQty      decimal.Decimal `json:"passed_qty"`
	FailedQty      decimal.Decimal `json:"failed_qty"`
	Result         Result          `json:"result"`
	Notes          string          `json:"notes"`
	InspectorID    *int64          `json:"inspector_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NCR is a non-conformance report.
type NCR struct {
	ID               int64      `json:"id"`
	TenantID         int64      `json:"tenant_id"`
	Number           string     `json:"number"`
	InspectionID     *int64     `json:"inspection_id,omitempty"`
	Severity         Severity   `json:"severity"`
	Description      string     `json:"description"`
	Status           NCRStatus  `json:"status"`
	CorrectiveAction string     `json:"corrective_action"`
	RaisedBy         *int64     `json:"raised_by,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// InspectionInput creates an inspection. Result is derived from the
// quantities when empty.
type InspectionInput struct {
	GRNID          *int64          `json:"grn_id" validate:"omitempty,gt=0"`
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	InspectionDate shared.Date     `json:"inspection_date"`
	InspectedQty   decimal.Decimal `json:"inspected_qty"`
	PassedQty      decimal.Decimal `json:"passed_qty"`
	FailedQty      decimal.Decimal `json:"failed_qty"`
	Result         Result          `json:"result" validate:"omitempty,oneof=pass fail conditional"`
	Notes          string          `json:"notes" validate:"max=2000"`
}

// InspectionUpdate patches an inspection. Quantities are replaced together.
type InspectionUpdate struct {
	InspectionDate *shared.Date     `json:"inspection_date"`
	InspectedQty   *decimal.Decimal `json:"inspected_qty"`
	PassedQty      *decimal.Decimal `json:"passed_qty"`
	FailedQty      *decimal.Decimal `json:"failed_qty"`
	Result         *Result          `json:"result" validate:"omitempty,oneof=pass fail conditional"`
	Notes          *string          `json:"notes" validate:"omitempty,max=2000"`
}

// NCRInput creates an NCR, standalone or for an inspection.
type NCRInput struct {
	InspectionID *int64   `json:"inspection_id" validate:"omitempty,gt=0"`
	Severity     Severity `json:"severity" validate:"required,oneof=minor major critical"`
	Description  string   `json:"description" validate:"required,max=4000"`
}

// RaiseInput raises an NCR from an inspection.
type RaiseInput struct {
	Severity    Severity `json:"severity" validate:"required,oneof=minor major critical"`
	Description string   `json:"description" validate:"required,max=4000"`
}

type NCRUpdate struct {
	Severity         *Severity `json:"severity" validate:"omitempty,oneof=minor major critical"`
	Description      *string   `json:"description" validate:"omitempty,max=4000"`
	CorrectiveAction *string   `json:"corrective_action" validate:"omitempty,max=4000"`
}

// NCRStatusInput moves an NCR forward. Closing needs a corrective action,
// either already stored or given here.
type NCRStatusInput struct {
	Status           NCRStatus `json:"status" validate:"required,oneof=open investigating closed"`
	CorrectiveAction *string   `json:"corrective_action" validate:"omitempty,max=4000"`
}

type InspectionFilters struct {
	GRNID     int64
	ProductID int64
	Result    Result
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

type NCRFilters struct {
	InspectionID int64
	Status       NCRStatus
	Severity     Severity
	Limit        int
	Offset       int
}

// DeriveResult grades an inspection by its quantities.
func DeriveResult(passed, failed decimal.Decimal) Result {
	switch {
	case failed.IsZero():
		return ResultPass
	case passed.IsZero():
		return ResultFail
	default:
		return ResultConditional
	}
}

// checkQuantities enforces passed + failed = inspected with nothing negative.
func checkQuantities(inspected, passed, failed decimal.Decimal) error {
	if inspected.IsNegative() || passed.IsNegative() || failed.IsNegative() {
		return shared.Invalid("quantities must not be negative")
	}
	if !inspected.IsPositive() {
		return shared.Invalid("inspected quantity must be positive")
	}
	if !passed.Add(failed).Equal(inspected) {
		return shared.Invalid("passed %s + failed %s must equal inspected %s", passed, failed, inspected)
	}
	return nil
}

// checkResult rejects an explicit result that contradicts the quantities.
func checkResult(result Result, failed decimal.Decimal) error {
	switch {
	case !result.Valid():
		return shared.Invalid("unknown result %q", result)
	case result == ResultPass && failed.IsPositive():
		return shared.Invalid("a passing inspection cannot have failed quantity")
	case result == ResultFail && failed.IsZero():
		return shared.Invalid("a failing inspection needs failed quantity")
	}
	return nil
}
