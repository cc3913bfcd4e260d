package periods

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execRecorder struct {
	pgx.Tx
	sql  string
	args []any
}

func (r *execRecorder) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	return pgconn.CommandTag{}, nil
}

func TestLockTenantUsesFullTenantID(t *testing.T) {
	for _, tenantID := range []int64{1, 1<<32 + 1, 1<<40 + 7} {
		rec := &execRecorder{}
		repo := &txRepo{tx: rec, tenantID: tenantID}
		require.NoError(t, repo.LockTenant(context.Background()))
		require.Contains(t, rec.sql, "hashtextextended")
		require.Equal(t, []any{tenantID}, rec.args)
	}
}
