package qc

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository exposes transactional persistence helpers.
type TxRepository interface {
	NextNumber(ctx context.Context, prefix string) (string, error)
	EnsureGRN(ctx context.Context, grnID int64) error
	InsertInspection(ctx context.Context, insp Inspection) (Inspection, error)
	LoadInspection(ctx context.Context, id int64) (Inspection, error)
	UpdateInspection(ctx context.Context, insp Inspection) (Inspection, error)
	DeleteInspection(ctx context.Context, id int64) error
	InsertNCR(ctx context.Context, n NCR) (NCR, error)
	LoadNCR(ctx context.Context, id int64) (NCR, error)
	UpdateNCR(ctx context.Context, n NCR) (NCR, error)
	DeleteNCR(ctx context.Context, id int64) error
}

// Repository persists inspections and NCRs.
type Repository struct {
	pool db.Beginner
}

// NewRepository builds a repository.
func NewRepository(pool db.Beginner) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn within a tenant-scoped transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		return fn(db.ContextWithTx(ctx, tx), &txRepo{tx: tx, tenantID: tenantID})
	})
}

const inspectionColumns = `id, tenant_id, number, grn_id, product_id, inspection_date, inspected_qty, passed_qty,
	failed_qty, result, notes, inspector_id, created_at, updated_at`

const ncrColumns = `id, tenant_id, number, inspection_id, severity, description, status, corrective_action,
	raised_by, closed_at, created_at, updated_at`

func scanInspection(row pgx.Row) (Inspection, error) {
	var i Inspection
	var result string
	err := row.Scan(&i.ID, &i.TenantID, &i.Number, &i.GRNID, &i.ProductID, &i.InspectionDate.Time,
		&i.InspectedQty, &i.PassedQty, &i.FailedQty, &result, &i.Notes, &i.InspectorID, &i.CreatedAt, &i.UpdatedAt)
	i.Result = Result(result)
	return i, err
}

func scanNCR(row pgx.Row) (NCR, error) {
	var n NCR
	var severity, status string
	err := row.Scan(&n.ID, &n.TenantID, &n.Number, &n.InspectionID, &severity, &n.Description, &status,
		&n.CorrectiveAction, &n.RaisedBy, &n.ClosedAt, &n.CreatedAt, &n.UpdatedAt)
	n.Severity = Severity(severity)
	n.Status = NCRStatus(status)
	return n, err
}

func (r *Repository) ListInspections(ctx context.Context, filters InspectionFilters) ([]Inspection, int, error) {
	var (
		out   []Inspection
		total int
	)
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		where := ` WHERE tenant_id = $1`
		args := []any{tenantID}
		if filters.GRNID > 0 {
			args = append(args, filters.GRNID)
			where += ` AND grn_id = $` + strconv.Itoa(len(args))
		}
		if filters.ProductID > 0 {
			args = append(args, filters.ProductID)
			where += ` AND product_id = $` + strconv.Itoa(len(args))
		}
		if filters.Result != "" {
			args = append(args, string(filters.Result))
			where += ` AND result = $` + strconv.Itoa(len(args))
		}
		if filters.From != nil {
			args = append(args, *filters.From)
			where += ` AND inspection_date >= $` + strconv.Itoa(len(args))
		}
		if filters.To != nil {
			args = append(args, *filters.To)
			where += ` AND inspection_date <= $` + strconv.Itoa(len(args))
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM qc_inspections`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("qc: count inspections: %w", err)
		}
		args = append(args, filters.Limit, filters.Offset)
		rows, err := tx.Query(ctx, `SELECT `+inspectionColumns+` FROM qc_inspections`+where+
			` ORDER BY inspection_date DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return fmt.Errorf("qc: list inspections: %w", err)
		}
		defer rows.Close()
		out = make([]Inspection, 0)
		for rows.Next() {
			i, err := scanInspection(rows)
			if err != nil {
				return err
			}
			out = append(out, i)
		}
		return rows.Err()
	})
	return out, total, err
}

func (r *Repository) GetInspection(ctx context.Context, id int64) (Inspection, error) {
	var i Inspection
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		i, err = (&txRepo{tx: tx, tenantID: tenantID}).loadInspection(ctx, id, "")
		return err
	})
	return i, err
}

func (r *Repository) ListNCRs(ctx context.Context, filters NCRFilters) ([]NCR, int, error) {
	var (
		out   []NCR
		total int
	)
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		where := ` WHERE tenant_id = $1`
		args := []any{tenantID}
		if filters.InspectionID > 0 {
			args = append(args, filters.InspectionID)
			where += ` AND inspection_id = $` + strconv.Itoa(len(args))
		}
		if filters.Status != "" {
			args = append(args, string(filters.Status))
			where += ` AND status = $` + strconv.Itoa(len(args))
		}
		if filters.Severity != "" {
			args = append(args, string(filters.Severity))
			where += ` AND severity = $` + strconv.Itoa(len(args))
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM ncrs`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("qc: count ncrs: %w", err)
		}
		args = append(args, filters.Limit, filters.Offset)
		rows, err := tx.Query(ctx, `SELECT `+ncrColumns+` FROM ncrs`+where+
			` ORDER BY id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return fmt.Errorf("qc: list ncrs: %w", err)
		}
		defer rows.Close()
		out = make([]NCR, 0)
		for rows.Next() {
			n, err := scanNCR(rows)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return rows.Err()
	})
	return out, total, err
}

func (r *Repository) GetNCR(ctx context.Context, id int64) (NCR, error) {
	var n NCR
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		n, err = (&txRepo{tx: tx, tenantID: tenantID}).loadNCR(ctx, id, "")
		return err
	})
	return n, err
}

type txRepo struct {
	tx       pgx.Tx
	tenantID int64
}

func (t *txRepo) NextNumber(ctx context.Context, prefix string) (string, error) {
	return db.NextNumber(ctx, t.tx, t.tenantID, prefix)
}

func (t *txRepo) EnsureGRN(ctx context.Context, grnID int64) error {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM grns WHERE tenant_id = $1 AND id = $2)`,
		t.tenantID, grnID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return shared.NotFound("grn", grnID)
	}
	return nil
}

func (t *txRepo) loadInspection(ctx context.Context, id int64, lock string) (Inspection, error) {
	i, err := scanInspection(t.tx.QueryRow(ctx, `SELECT `+inspectionColumns+` FROM qc_inspections
WHERE tenant_id = $1 AND id = $2`+lock, t.tenantID, id))
	if db.IsNoRows(err) {
		return Inspection{}, shared.NotFound("inspection", id)
	}
	return i, err
}

func (t *txRepo) InsertInspection(ctx context.Context, insp Inspection) (Inspection, error) {
	return scanInspection(t.tx.QueryRow(ctx, `
INSERT INTO qc_inspections (tenant_id, number, grn_id, product_id, inspection_date, inspected_qty, passed_qty,
	failed_qty, result, notes, inspector_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+inspectionColumns,
		t.tenantID, insp.Number, insp.GRNID, insp.ProductID, insp.InspectionDate.Time, insp.InspectedQty,
		insp.PassedQty, insp.FailedQty, string(insp.Result), insp.Notes, insp.InspectorID))
}

func (t *txRepo) LoadInspection(ctx context.Context, id int64) (Inspection, error) {
	return t.loadInspection(ctx, id, " FOR UPDATE")
}

func (t *txRepo) UpdateInspection(ctx context.Context, insp Inspection) (Inspection, error) {
	return scanInspection(t.tx.QueryRow(ctx, `
UPDATE qc_inspections SET inspection_date = $3, inspected_qty = $4, passed_qty = $5, failed_qty = $6,
	result = $7, notes = $8, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+inspectionColumns,
		t.tenantID, insp.ID, insp.InspectionDate.Time, insp.InspectedQty, insp.PassedQty, insp.FailedQty,
		string(insp.Result), insp.Notes))
}

func (t *txRepo) DeleteInspection(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM qc_inspections WHERE tenant_id = $1 AND id = $2`, t.tenantID, id)
	if db.IsForeignKeyViolation(err) {
		return shared.Conflict("inspection %d has NCRs", id)
	}
	return err
}

func (t *txRepo) loadNCR(ctx context.Context, id int64, lock string) (NCR, error) {
	n, err := scanNCR(t.tx.QueryRow(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE tenant_id = $1 AND id = $2`+lock,
		t.tenantID, id))
	if db.IsNoRows(err) {
		return NCR{}, shared.NotFound("ncr", id)
	}
	return n, err
}

func (t *txRepo) InsertNCR(ctx context.Context, n NCR) (NCR, error) {
	return scanNCR(t.tx.QueryRow(ctx, `
INSERT INTO ncrs (tenant_id, number, inspection_id, severity, description, status, corrective_action, raised_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+ncrColumns,
		t.tenantID, n.Number, n.InspectionID, string(n.Severity), n.Description, string(n.Status),
		n.CorrectiveAction, n.RaisedBy))
}

func (t *txRepo) LoadNCR(ctx context.Context, id int64) (NCR, error) {
	return t.loadNCR(ctx, id, " FOR UPDATE")
}

func (t *txRepo) UpdateNCR(ctx context.Context, n NCR) (NCR, error) {
	var closedAt *time.Time
	if n.ClosedAt != nil {
		at := n.ClosedAt.UTC()
		closedAt = &at
	}
	return scanNCR(t.tx.QueryRow(ctx, `
UPDATE ncrs SET severity = $3, description = $4, status = $5, corrective_action = $6, closed_at = $7,
	updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+ncrColumns,
		t.tenantID, n.ID, string(n.Severity), n.Description, string(n.Status), n.CorrectiveAction, closedAt))
}

func (t *txRepo) DeleteNCR(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM ncrs WHERE tenant_id = $1 AND id = $2`, t.tenantID, id)
	return err
}
