package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/domain"
)

type SagaRepository struct {
	q Executor
}

func NewSagaRepository(db *DB) *SagaRepository {
	return &SagaRepository{q: db.Pool}
}

var _ application.SagaRepository = (*SagaRepository)(nil)

func (r *SagaRepository) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.SagaState, error) {
	query := `
		SELECT correlation_id, current_state, partner_code, request_type, payload, created_at, updated_at, version
		FROM sagas
		WHERE correlation_id = $1
	`

	var s domain.SagaState
	err := r.q.QueryRow(ctx, query, correlationID).Scan(
		&s.CorrelationID,
		&s.CurrentState,
		&s.PartnerCode,
		&s.RequestType,
		&s.Payload,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSagaNotFound
		}
		return nil, fmt.Errorf("failed to find saga: %w", err)
	}

	return &s, nil
}

func (r *SagaRepository) Insert(ctx context.Context, state *domain.SagaState) error {
	query := `
		INSERT INTO sagas (correlation_id, current_state, partner_code, request_type, payload, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
	`

	_, err := r.q.Exec(ctx, query,
		state.CorrelationID,
		state.CurrentState,
		state.PartnerCode,
		state.RequestType,
		state.Payload,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			// A concurrent consumer created the instance first.
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("failed to insert saga: %w", err)
	}

	state.Version = 1
	return nil
}

// Update persists the instance only if the caller still holds the current
// version. A stale writer gets domain.ErrVersionConflict and must re-fetch
// or rely on redelivery.
func (r *SagaRepository) Update(ctx context.Context, state *domain.SagaState) error {
	query := `
		UPDATE sagas
		SET current_state = $1, partner_code = $2, request_type = $3, payload = $4, updated_at = $5, version = version + 1
		WHERE correlation_id = $6 AND version = $7
	`

	tag, err := r.q.Exec(ctx, query,
		state.CurrentState,
		state.PartnerCode,
		state.RequestType,
		state.Payload,
		state.UpdatedAt,
		state.CorrelationID,
		state.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update saga: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	state.Version++
	return nil
}
