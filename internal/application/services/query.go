package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/domain"
)

// QueryService answers get-request lookups from the request ledger.
type QueryService struct {
	requests application.RequestRepository
}

func NewQueryService(requests application.RequestRepository) *QueryService {
	return &QueryService{requests: requests}
}

func (s *QueryService) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Request, error) {
	req, err := s.requests.FindByCorrelationID(ctx, correlationID)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			return nil, application.NewNotFoundError(err)
		}
		return nil, application.NewInternalError(err)
	}
	return req, nil
}
