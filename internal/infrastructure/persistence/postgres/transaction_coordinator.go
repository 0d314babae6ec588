package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaypoint/partner-hub/internal/application"
)

// TransactionCoordinator runs a unit of work across repositories sharing one
// database transaction.
type TransactionCoordinator struct {
	pool *pgxpool.Pool
}

func NewTransactionCoordinator(db *DB) *TransactionCoordinator {
	return &TransactionCoordinator{pool: db.Pool}
}

var _ application.TransactionCoordinator = (*TransactionCoordinator)(nil)

// WithTransaction executes fn with repository instances bound to one open
// transaction. The transaction commits only if fn returns nil; abandoned
// work is rolled back so a partial write is never observable.
func (tc *TransactionCoordinator) WithTransaction(
	ctx context.Context,
	fn func(ctx context.Context, repos application.TxRepositories) error,
) error {
	tx, err := tc.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	repos := application.TxRepositories{
		Requests:  &RequestRepository{q: tx},
		DedupKeys: &DedupKeyRepository{q: tx},
		Inbox:     &InboxRepository{q: tx},
		Outbox:    &OutboxRepository{q: tx},
		Sagas:     &SagaRepository{q: tx},
	}

	if err := fn(ctx, repos); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
