package domain

import (
	"time"

	"github.com/google/uuid"
)

// Request statuses visible to callers. A row is created as Received and only
// ever moves to Completed or Failed, by the status projector.
const (
	StatusReceived  = "Received"
	StatusCompleted = "Completed"
	StatusFailed    = "Failed"
)

// Request is the durable ledger entry for one accepted logical request.
// CorrelationID is the public identity; ID is internal only.
type Request struct {
	ID             uuid.UUID
	CorrelationID  uuid.UUID
	PartnerCode    string
	Type           string
	Payload        string
	IdempotencyKey string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// NewRequest builds an accepted request in the Received state.
func NewRequest(correlationID uuid.UUID, partnerCode, reqType, payload, idempotencyKey string) *Request {
	return &Request{
		ID:             uuid.New(),
		CorrelationID:  correlationID,
		PartnerCode:    partnerCode,
		Type:           reqType,
		Payload:        payload,
		IdempotencyKey: idempotencyKey,
		Status:         StatusReceived,
		CreatedAt:      time.Now().UTC(),
	}
}

// DedupKey maps a caller-supplied idempotency key to the correlation ID it
// resolved to. Immutable, created atomically with its Request.
type DedupKey struct {
	ID            uuid.UUID
	Key           string
	CorrelationID uuid.UUID
	CreatedAt     time.Time
}

// InboxRecord is the durable copy of the accepted event, persisted in the
// same unit as the Request row. Audit and recovery artifact, never mutated.
type InboxRecord struct {
	ID            uuid.UUID
	MessageID     string
	MessageType   string
	Payload       string
	CorrelationID uuid.UUID
	ReceivedAt    time.Time
}
