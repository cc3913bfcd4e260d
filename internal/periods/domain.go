// Package periods manages accounting periods and the guard that keeps
// postings out of closed ones.
package periods

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status enumerates accounting period lifecycle stages.
type Status string

const (
	StatusOpen Status = "open"
	// StatusPendingClose is accepted from storage but no transition produces it.
	StatusPendingClose Status = "pending_close"
	StatusClosed       Status = "closed"
)

// Period is an inclusive date range owned by one tenant.
type Period struct {
	ID         int64       `json:"id"`
	TenantID   int64       `json:"tenant_id"`
	Name       string      `json:"name"`
	StartDate  shared.Date `json:"start_date"`
	EndDate    shared.Date `json:"end_date"`
	Status     Status      `json:"status"`
	Notes      string      `json:"notes"`
	ClosedBy   *int64      `json:"closed_by,omitempty"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty"`
	ReopenedBy *int64      `json:"reopened_by,omitempty"`
	ReopenedAt *time.Time  `json:"reopened_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Contains reports whether date falls inside the period, both ends inclusive.
func (p Period) Contains(date time.Time) bool {
	d := shared.DateOnly(date)
	return !d.Before(p.StartDate.Time) && !d.After(p.EndDate.Time)
}

// IsClosed reports whether the period is closed.
func (p Period) IsClosed() bool {
	return p.Status == StatusClosed
}

// Overlaps reports whether the inclusive ranges [aStart, aEnd] and [bStart, bEnd] share a day.
// It covers both endpoint-inside cases and containment of one range by the other.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	endpointInside := (!bStart.Before(aStart) && !bStart.After(aEnd)) ||
		(!bEnd.Before(aStart) && !bEnd.After(aEnd))
	swallows := !bStart.After(aStart) && !aEnd.After(bEnd)
	return endpointInside || swallows
}

// CreatePeriodInput captures validation rules for new periods.
type CreatePeriodInput struct {
	Name      string      `json:"name" validate:"max=100"`
	StartDate shared.Date `json:"start_date"`
	EndDate   shared.Date `json:"end_date"`
	Notes     string      `json:"notes" validate:"max=2000"`
}

// Validate ensures the create period input is coherent.
func (in CreatePeriodInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return shared.Invalid("period name required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return shared.Invalid("start and end date required")
	}
	if in.StartDate.After(in.EndDate.Time) {
		return shared.Invalid("start date %s is after end date %s", in.StartDate, in.EndDate)
	}
	return nil
}

// UpdatePeriodInput changes descriptive fields; dates are immutable.
type UpdatePeriodInput struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	Notes *string `json:"notes" validate:"omitempty,max=2000"`
}

var (
	// ErrAlreadyClosed is returned when closing a closed period.
	ErrAlreadyClosed = fmt.Errorf("%w: period already closed", shared.ErrState)
	// ErrNotClosed is returned when reopening a period that is not closed.
	ErrNotClosed = fmt.Errorf("%w: period is not closed", shared.ErrState)
	// ErrPeriodClosed is returned when editing or deleting a closed period.
	ErrPeriodClosed = fmt.Errorf("%w: period is closed", shared.ErrState)
	// ErrHasTransactions blocks deletion of a period with postings in range.
	ErrHasTransactions = fmt.Errorf("%w: period has posted transactions", shared.ErrConflict)
	// ErrDateInClosedPeriod is returned by the guard for postings into a closed period.
	ErrDateInClosedPeriod = fmt.Errorf("%w: date falls in a closed accounting period", shared.ErrState)
)

// OverlapError reports the period a new range collides with.
func OverlapError(existing Period) error {
	return shared.Invalid("period overlaps %q (%s to %s)", existing.Name, existing.StartDate, existing.EndDate)
}
