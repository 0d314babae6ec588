// Package contracts holds the message schemas shared by every process on the
// bus. The wire format is JSON; each message travels under its type name so
// consumers and the outbox dispatcher can resolve the schema.
package contracts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message type names. These double as routing keys on the bus and as the
// declared type of staged outbox records.
const (
	TypeRequestReceived   = "RequestReceived"
	TypeDispatchToPartner = "DispatchToPartner"
	TypeRequestCompleted  = "RequestCompleted"
	TypeRequestFailed     = "RequestFailed"
)

// RequestReceived announces that intake durably accepted a new request.
type RequestReceived struct {
	CorrelationID uuid.UUID       `json:"correlationId"`
	PartnerCode   string          `json:"partnerCode"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// DispatchToPartner commands the outbound worker to call the partner.
type DispatchToPartner struct {
	CorrelationID uuid.UUID       `json:"correlationId"`
	PartnerCode   string          `json:"partnerCode"`
	Endpoint      string          `json:"endpoint"`
	Payload       json.RawMessage `json:"payload"`
}

// RequestCompleted is the successful terminal outcome of a dispatch.
type RequestCompleted struct {
	CorrelationID uuid.UUID       `json:"correlationId"`
	PartnerCode   string          `json:"partnerCode"`
	StatusCode    int             `json:"statusCode"`
	Status        string          `json:"status"`
	Response      json.RawMessage `json:"response,omitempty"`
}

// RequestFailed is the failed terminal outcome of a dispatch.
type RequestFailed struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	PartnerCode   string    `json:"partnerCode"`
	Reason        string    `json:"reason"`
	Attempts      *int      `json:"attempts,omitempty"`
}

// TypeNameOf returns the wire type name for a known message, or "".
func TypeNameOf(msg any) string {
	switch msg.(type) {
	case RequestReceived, *RequestReceived:
		return TypeRequestReceived
	case DispatchToPartner, *DispatchToPartner:
		return TypeDispatchToPartner
	case RequestCompleted, *RequestCompleted:
		return TypeRequestCompleted
	case RequestFailed, *RequestFailed:
		return TypeRequestFailed
	}
	return ""
}
