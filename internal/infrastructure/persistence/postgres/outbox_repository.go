package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/domain"
)

type OutboxRepository struct {
	q Executor
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{q: db.Pool}
}

var _ application.OutboxRepository = (*OutboxRepository)(nil)

func (r *OutboxRepository) Create(ctx context.Context, rec *domain.OutboxRecord) error {
	query := `
		INSERT INTO outbox_messages (id, message_type, payload, correlation_id, created_at, published)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.Exec(ctx, query,
		rec.ID,
		rec.MessageType,
		rec.Payload,
		rec.CorrelationID,
		rec.CreatedAt,
		rec.Published,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox record: %w", err)
	}

	return nil
}

func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	query := `
		SELECT id, message_type, payload, correlation_id, created_at, published, published_at
		FROM outbox_messages
		WHERE published = FALSE
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished outbox records: %w", err)
	}
	defer rows.Close()

	var records []*domain.OutboxRecord
	for rows.Next() {
		var rec domain.OutboxRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.MessageType,
			&rec.Payload,
			&rec.CorrelationID,
			&rec.CreatedAt,
			&rec.Published,
			&rec.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox records: %w", err)
	}

	return records, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	query := `
		UPDATE outbox_messages
		SET published = TRUE, published_at = $1
		WHERE id = $2
	`

	_, err := r.q.Exec(ctx, query, publishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox record published: %w", err)
	}

	return nil
}
