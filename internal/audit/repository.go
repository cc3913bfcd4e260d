package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by Repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads and writes audit_logs.
type Repository struct {
	db DB
}

// NewRepository constructs the audit repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const insertSQL = `
INSERT INTO audit_logs (id, tenant_id, user_id, entity_type, entity_id, action, old_value, new_value, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`

// Insert stores entry; a second insert of the same id is a no-op.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	_, err := r.db.Exec(ctx, insertSQL,
		e.ID.String(), nullableID(e.TenantID), nullableID(e.UserID), e.EntityType, e.EntityID, string(e.Action),
		nullableJSON(e.OldValue), nullableJSON(e.NewValue), e.IPAddress, e.UserAgent, e.Timestamp)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

const selectColumns = `id::text, tenant_id, user_id, entity_type, entity_id, action, old_value, new_value, ip_address, user_agent, created_at`

// List returns one page of matching logs, newest first, and the total count.
func (r *Repository) List(ctx context.Context, f Filters) ([]Entry, int, error) {
	where, args := buildWhere(f)
	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	query := "SELECT " + selectColumns + " FROM audit_logs" + where +
		" ORDER BY created_at DESC, id LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	entries, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListAll returns every matching log, newest first.
func (r *Repository) ListAll(ctx context.Context, f Filters) ([]Entry, error) {
	where, args := buildWhere(f)
	return r.query(ctx, "SELECT "+selectColumns+" FROM audit_logs"+where+" ORDER BY created_at DESC, id", args...)
}

// History returns the full history of one entity, oldest first.
func (r *Repository) History(ctx context.Context, tenantID *int64, entityType, entityID string) ([]Entry, error) {
	f := Filters{TenantID: tenantID, EntityType: entityType, EntityID: entityID}
	where, args := buildWhere(f)
	return r.query(ctx, "SELECT "+selectColumns+" FROM audit_logs"+where+" ORDER BY created_at ASC, id", args...)
}

// Stats aggregates totals per action and the busiest users.
func (r *Repository) Stats(ctx context.Context, tenantID *int64, topN int) (Stats, error) {
	stats := Stats{ByAction: map[Action]int64{}, TopUsers: []UserCount{}}
	rows, err := r.db.Query(ctx, `
SELECT action, COUNT(*) FROM audit_logs
WHERE ($1::bigint IS NULL OR tenant_id = $1)
GROUP BY action`, tenantID)
	if err != nil {
		return Stats{}, fmt.Errorf("audit: stats by action: %w", err)
	}
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			rows.Close()
			return Stats{}, err
		}
		stats.ByAction[Action(action)] = count
		stats.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	rows, err = r.db.Query(ctx, `
SELECT user_id, COUNT(*) AS n FROM audit_logs
WHERE user_id IS NOT NULL AND ($1::bigint IS NULL OR tenant_id = $1)
GROUP BY user_id
ORDER BY n DESC, user_id
LIMIT $2`, tenantID, topN)
	if err != nil {
		return Stats{}, fmt.Errorf("audit: top users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uc UserCount
		if err := rows.Scan(&uc.UserID, &uc.Count); err != nil {
			return Stats{}, err
		}
		stats.TopUsers = append(stats.TopUsers, uc)
	}
	return stats, rows.Err()
}

// DeleteBefore removes logs created before cutoff, limited to one tenant when
// tenantID is set.
func (r *Repository) DeleteBefore(ctx context.Context, tenantID *int64, cutoff time.Time) (int64, error) {
	sql := `DELETE FROM audit_logs WHERE created_at < $1`
	args := []any{cutoff}
	if tenantID != nil {
		sql += ` AND tenant_id = $2`
		args = append(args, *tenantID)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()
	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e              Entry
			id             string
			tenantID       *int64
			userID         *int64
			action         string
			oldVal, newVal []byte
		)
		if err := rows.Scan(&id, &tenantID, &userID, &e.EntityType, &e.EntityID, &action, &oldVal, &newVal, &e.IPAddress, &e.UserAgent, &e.Timestamp); err != nil {
			return nil, err
		}
		e.ID, _ = uuid.Parse(id)
		if tenantID != nil {
			e.TenantID = *tenantID
		}
		if userID != nil {
			e.UserID = *userID
		}
		e.Action = Action(action)
		e.OldValue = oldVal
		e.NewValue = newVal
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func buildWhere(f Filters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.TenantID != nil {
		add("tenant_id = $%d", *f.TenantID)
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.EntityType != "" {
		add("entity_type = $%d", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func nullableJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
