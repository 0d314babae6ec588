package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/application/services"
	"github.com/relaypoint/partner-hub/internal/interfaces/rest"
)

var validate = validator.New()

type createRequestBody struct {
	PartnerCode string          `json:"partnerCode" validate:"required"`
	Type        string          `json:"type" validate:"required"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
}

type requestResponse struct {
	CorrelationID string     `json:"correlationId"`
	PartnerCode   string     `json:"partnerCode,omitempty"`
	Type          string     `json:"type,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

type successResponse struct {
	Success bool            `json:"success"`
	Data    requestResponse `json:"data"`
}

// CreateRequest accepts a submission and answers 202 with the correlation ID
// it resolved to, whether freshly minted or replayed from the dedup mapping.
func (h *Handlers) CreateRequest(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		rest.WriteError(w, application.NewInvalidInputError(fmt.Errorf("missing Idempotency-Key header")), h.logger)
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(fmt.Errorf("malformed request body: %w", err)), h.logger)
		return
	}
	if err := validate.Struct(body); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	result, err := h.intakeService.Receive(r.Context(), services.ReceiveCommand{
		PartnerCode:    body.PartnerCode,
		Type:           body.Type,
		Payload:        payloadText(body.Payload),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusAccepted, successResponse{
		Success: true,
		Data: requestResponse{
			CorrelationID: result.CorrelationID.String(),
			Status:        result.Status,
			CreatedAt:     result.CreatedAt,
		},
	})
}

// payloadText recovers the caller's payload text: a JSON string arrives
// quoted and is unwrapped, anything else is kept verbatim.
func payloadText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
