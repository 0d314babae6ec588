// Package handlers exposes the intake HTTP surface: request submission and
// status lookup. Authentication and rate limiting happen at the edge before
// anything reaches these handlers.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/relaypoint/partner-hub/internal/application/services"
)

type Handlers struct {
	intakeService *services.IntakeService
	queryService  *services.QueryService
	logger        *slog.Logger
}

func NewHandlers(
	intakeService *services.IntakeService,
	queryService *services.QueryService,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		intakeService: intakeService,
		queryService:  queryService,
		logger:        logger,
	}
}

// Routes registers the API endpoints on mux.
func (h *Handlers) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/requests", h.CreateRequest)
	mux.HandleFunc("GET /api/requests/{correlationId}", h.GetRequest)
}
