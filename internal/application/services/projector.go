package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
)

// ProjectorService folds terminal events into the caller-visible request
// status. Repeated identical updates are harmless, so it needs no dedup of
// its own.
type ProjectorService struct {
	requests application.RequestRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewProjectorService(requests application.RequestRepository, logger *slog.Logger) *ProjectorService {
	return &ProjectorService{
		requests: requests,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ProjectorService) Register(bus application.Bus) {
	bus.Subscribe(contracts.TypeRequestCompleted, s.HandleEvent)
	bus.Subscribe(contracts.TypeRequestFailed, s.HandleEvent)
}

func (s *ProjectorService) HandleEvent(ctx context.Context, msg any) error {
	switch ev := msg.(type) {
	case contracts.RequestCompleted:
		return s.project(ctx, ev.CorrelationID, domain.StatusCompleted)
	case contracts.RequestFailed:
		return s.project(ctx, ev.CorrelationID, domain.StatusFailed)
	}
	return fmt.Errorf("projector: unexpected message %T", msg)
}

func (s *ProjectorService) project(ctx context.Context, correlationID uuid.UUID, status string) error {
	err := s.requests.UpdateStatus(ctx, correlationID, status, s.now().UTC())
	if errors.Is(err, domain.ErrRequestNotFound) {
		// Intake commits the row before anything else runs, so this should
		// not happen. Dropping beats crash-looping the consumer.
		s.logger.Warn("terminal event for unknown request dropped",
			"correlation_id", correlationID, "status", status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to project status for %s: %w", correlationID, err)
	}
	return nil
}
