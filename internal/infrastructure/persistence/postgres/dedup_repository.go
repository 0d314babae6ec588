package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/domain"
)

type DedupKeyRepository struct {
	q Executor
}

func NewDedupKeyRepository(db *DB) *DedupKeyRepository {
	return &DedupKeyRepository{q: db.Pool}
}

var _ application.DedupKeyRepository = (*DedupKeyRepository)(nil)

func (r *DedupKeyRepository) Create(ctx context.Context, key *domain.DedupKey) error {
	query := `
		INSERT INTO dedup_keys (id, key, correlation_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.q.Exec(ctx, query, key.ID, key.Key, key.CorrelationID, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create dedup key: %w", err)
	}

	return nil
}

func (r *DedupKeyRepository) FindByKey(ctx context.Context, key string) (*domain.DedupKey, error) {
	query := `
		SELECT id, key, correlation_id, created_at
		FROM dedup_keys
		WHERE key = $1
	`

	var dk domain.DedupKey
	err := r.q.QueryRow(ctx, query, key).Scan(&dk.ID, &dk.Key, &dk.CorrelationID, &dk.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find dedup key: %w", err)
	}

	return &dk, nil
}
