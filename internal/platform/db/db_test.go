package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", MigrateURL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/db", MigrateURL("postgresql://localhost/db"))
	require.Equal(t, "pgx5://already", MigrateURL("pgx5://already"))
}

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	require.True(t, IsUniqueViolation(unique))
	require.False(t, IsForeignKeyViolation(unique))
	require.True(t, IsExclusionViolation(&pgconn.PgError{Code: "23P01"}))
	require.True(t, IsNoRows(fmt.Errorf("load: %w", pgx.ErrNoRows)))
	require.False(t, IsUniqueViolation(errors.New("plain")))
}

type failingBeginner struct{ called bool }

func (f *failingBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.called = true
	return nil, errors.New("unreachable")
}

func TestScopeRequiresTenant(t *testing.T) {
	b := &failingBeginner{}
	err := Scope(context.Background(), b, func(pgx.Tx, int64) error { return nil })
	require.ErrorIs(t, err, shared.ErrNoTenant)
	require.False(t, b.called)
}

type stubRow struct{ value int64 }

func (r stubRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.value
	return nil
}

type stubQuerier struct{ next int64 }

func (q *stubQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.next++
	return stubRow{value: q.next}
}

func TestNextNumberFormatsSequence(t *testing.T) {
	q := &stubQuerier{}
	first, err := NextNumber(context.Background(), q, 1, shared.PrefixGRN)
	require.NoError(t, err)
	second, err := NextNumber(context.Background(), q, 1, shared.PrefixGRN)
	require.NoError(t, err)
	require.Equal(t, "GRN-00001", first)
	require.Equal(t, "GRN-00002", second)
}

type recordingTx struct {
	pgx.Tx
	execs   int
	commits int
}

func (t *recordingTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execs++
	return pgconn.CommandTag{}, nil
}

func (t *recordingTx) Commit(ctx context.Context) error {
	t.commits++
	return nil
}

func (t *recordingTx) Rollback(ctx context.Context) error { return nil }

type countingBeginner struct {
	tx     *recordingTx
	begins int
}

func (b *countingBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	return b.tx, nil
}

func TestScopeJoinsTransactionCarriedByContext(t *testing.T) {
	b := &countingBeginner{tx: &recordingTx{}}
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{TenantID: 7})

	err := Scope(ctx, b, func(outer pgx.Tx, tenantID int64) error {
		require.Equal(t, int64(7), tenantID)
		inner := ContextWithTx(ctx, outer)
		joined, ok := TxFromContext(inner)
		require.True(t, ok)
		require.Same(t, outer, joined)
		return Scope(inner, b, func(tx pgx.Tx, tenantID int64) error {
			require.Same(t, outer, tx)
			require.Equal(t, int64(7), tenantID)
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, b.begins, "nested scope must not take a second connection")
	require.Equal(t, 1, b.tx.execs)
	require.Equal(t, 1, b.tx.commits)
}

func TestTxFromContextEmpty(t *testing.T) {
	_, ok := TxFromContext(context.Background())
	require.False(t, ok)
}
