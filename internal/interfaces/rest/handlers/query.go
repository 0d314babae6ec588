package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/interfaces/rest"
)

// GetRequest answers the status lookup by correlation ID.
func (h *Handlers) GetRequest(w http.ResponseWriter, r *http.Request) {
	correlationID, err := uuid.Parse(r.PathValue("correlationId"))
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(fmt.Errorf("invalid correlation ID: %w", err)), h.logger)
		return
	}

	req, err := h.queryService.FindByCorrelationID(r.Context(), correlationID)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		Data: requestResponse{
			CorrelationID: req.CorrelationID.String(),
			PartnerCode:   req.PartnerCode,
			Type:          req.Type,
			Status:        req.Status,
			CreatedAt:     req.CreatedAt,
			UpdatedAt:     req.UpdatedAt,
		},
	})
}
