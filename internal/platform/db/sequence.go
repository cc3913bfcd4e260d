package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Querier is the subset of pgx.Tx used by helpers that run inside a caller's transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const nextSequenceSQL = `
INSERT INTO document_sequences (tenant_id, scope, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (tenant_id, scope) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`

// NextNumber allocates the next document number for scope within the caller's transaction.
// The upsert takes a row lock, so concurrent creators serialise on the counter row.
func NextNumber(ctx context.Context, q Querier, tenantID int64, prefix string) (string, error) {
	var seq int64
	if err := q.QueryRow(ctx, nextSequenceSQL, tenantID, prefix).Scan(&seq); err != nil {
		return "", fmt.Errorf("platform/db: next %s number: %w", prefix, err)
	}
	return shared.FormatDocumentNumber(prefix, seq), nil
}
