package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxRecord is a staged outgoing event, written in the same transaction as
// the state change that produced it and published asynchronously. Only the
// dispatcher mutates it, by flipping Published.
type OutboxRecord struct {
	ID            uuid.UUID
	MessageType   string
	Payload       []byte
	CorrelationID uuid.UUID
	CreatedAt     time.Time
	Published     bool
	PublishedAt   *time.Time
}

// NewOutboxRecord stages a serialized event for publication.
func NewOutboxRecord(messageType string, payload []byte, correlationID uuid.UUID) *OutboxRecord {
	return &OutboxRecord{
		ID:            uuid.New(),
		MessageType:   messageType,
		Payload:       payload,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}
}
