package postgres

import (
	"context"
	"fmt"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/domain"
)

type InboxRepository struct {
	q Executor
}

func NewInboxRepository(db *DB) *InboxRepository {
	return &InboxRepository{q: db.Pool}
}

var _ application.InboxRepository = (*InboxRepository)(nil)

func (r *InboxRepository) Create(ctx context.Context, rec *domain.InboxRecord) error {
	query := `
		INSERT INTO inbox_messages (id, message_id, message_type, payload, correlation_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.Exec(ctx, query,
		rec.ID,
		rec.MessageID,
		rec.MessageType,
		rec.Payload,
		rec.CorrelationID,
		rec.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inbox record: %w", err)
	}

	return nil
}
