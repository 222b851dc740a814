package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotchain/hotledger/internal/ledger"
)

// Migrate applies the ledger schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ledger.Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
