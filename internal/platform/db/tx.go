package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Beginner is satisfied by *pgxpool.Pool and pgx.Tx.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type txContextKey struct{}

// ContextWithTx returns a context whose Scope calls join tx instead of
// acquiring another connection.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the transaction a caller is already running in.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

// Scope runs fn in a read-committed transaction bound to the caller's tenant.
// The tenant id is exported to the session as app.tenant_id for row-level security.
// When ctx already carries a transaction, fn runs on it and the outer caller commits.
func Scope(ctx context.Context, pool Beginner, fn func(tx pgx.Tx, tenantID int64) error) error {
	tenantID, err := shared.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		return fn(tx, tenantID)
	}
	return withTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", strconv.FormatInt(tenantID, 10)); err != nil {
			return fmt.Errorf("platform/db: set tenant: %w", err)
		}
		return fn(tx, tenantID)
	})
}

func withTx(ctx context.Context, pool Beginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	if pool == nil {
		return fmt.Errorf("platform/db: pool not initialised")
	}
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
