package outbound

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// TxManager defines the interface for database transaction management.
// Storage adapters use it to run a multi-statement write as one atomic unit.
type TxManager interface {
	// WithTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}
