package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/domain"
)

type RequestRepository struct {
	q Executor
}

func NewRequestRepository(db *DB) *RequestRepository {
	return &RequestRepository{q: db.Pool}
}

var _ application.RequestRepository = (*RequestRepository)(nil)

func (r *RequestRepository) Create(ctx context.Context, req *domain.Request) error {
	query := `
		INSERT INTO requests (id, correlation_id, partner_code, type, payload, idempotency_key, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.Exec(ctx, query,
		req.ID,
		req.CorrelationID,
		req.PartnerCode,
		req.Type,
		req.Payload,
		req.IdempotencyKey,
		req.Status,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

func (r *RequestRepository) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Request, error) {
	query := `
		SELECT id, correlation_id, partner_code, type, payload, idempotency_key, status, created_at, updated_at
		FROM requests
		WHERE correlation_id = $1
	`

	var req domain.Request
	err := r.q.QueryRow(ctx, query, correlationID).Scan(
		&req.ID,
		&req.CorrelationID,
		&req.PartnerCode,
		&req.Type,
		&req.Payload,
		&req.IdempotencyKey,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to find request: %w", err)
	}

	return &req, nil
}

func (r *RequestRepository) UpdateStatus(ctx context.Context, correlationID uuid.UUID, status string, updatedAt time.Time) error {
	query := `
		UPDATE requests
		SET status = $1, updated_at = $2
		WHERE correlation_id = $3
	`

	tag, err := r.q.Exec(ctx, query, status, updatedAt, correlationID)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}

	return nil
}
