package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
)

// DispatchService consumes DispatchToPartner commands, calls the partner
// through the resilient client and turns the result into a terminal event.
// The event is staged in the outbox first, then eagerly published; the
// background dispatcher covers the case where the eager publish fails.
type DispatchService struct {
	client application.PartnerClient
	tx     application.TransactionCoordinator
	outbox application.OutboxRepository
	bus    application.Bus
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatchService(
	client application.PartnerClient,
	tx application.TransactionCoordinator,
	outbox application.OutboxRepository,
	bus application.Bus,
	logger *slog.Logger,
) *DispatchService {
	return &DispatchService{
		client: client,
		tx:     tx,
		outbox: outbox,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

func (s *DispatchService) Register(bus application.Bus) {
	bus.Subscribe(contracts.TypeDispatchToPartner, s.HandleEvent)
}

func (s *DispatchService) HandleEvent(ctx context.Context, msg any) error {
	cmd, ok := msg.(contracts.DispatchToPartner)
	if !ok {
		return fmt.Errorf("dispatch: unexpected message %T", msg)
	}

	resp, err := s.client.Send(ctx, cmd)
	if err != nil {
		// Transport fault or open breaker. Record the failure once, then hand
		// the message back so redelivery applies the coarser outer retry
		// layer. Redeliveries of the same command already staged their
		// RequestFailed on first delivery; staging again would emit a fresh
		// terminal event per redelivery.
		if application.RedeliveryCount(ctx) == 0 {
			failed := contracts.RequestFailed{
				CorrelationID: cmd.CorrelationID,
				PartnerCode:   cmd.PartnerCode,
				Reason:        err.Error(),
			}
			if stageErr := s.stageAndPublish(ctx, failed); stageErr != nil {
				s.logger.Error("failed to record dispatch failure",
					"correlation_id", cmd.CorrelationID, "error", stageErr)
			}
		}
		return fmt.Errorf("dispatch to %s failed: %w", cmd.PartnerCode, err)
	}

	if resp.Success {
		s.logger.Info("partner dispatch succeeded",
			"correlation_id", cmd.CorrelationID,
			"partner_code", cmd.PartnerCode,
			"status_code", resp.StatusCode,
			"attempts", resp.Attempts)
		return s.stageAndPublish(ctx, contracts.RequestCompleted{
			CorrelationID: cmd.CorrelationID,
			PartnerCode:   cmd.PartnerCode,
			StatusCode:    resp.StatusCode,
			Status:        "Completed",
			Response:      resp.Body,
		})
	}

	s.logger.Warn("partner dispatch rejected",
		"correlation_id", cmd.CorrelationID,
		"partner_code", cmd.PartnerCode,
		"status_code", resp.StatusCode,
		"attempts", resp.Attempts)
	attempts := resp.Attempts
	return s.stageAndPublish(ctx, contracts.RequestFailed{
		CorrelationID: cmd.CorrelationID,
		PartnerCode:   cmd.PartnerCode,
		Reason:        fmt.Sprintf("partner returned status %d", resp.StatusCode),
		Attempts:      &attempts,
	})
}

// stageAndPublish persists the event as an unpublished outbox record, then
// attempts the eager publish. An eager-publish failure is not an error for
// the caller: the record is durable and the dispatcher will retry it.
func (s *DispatchService) stageAndPublish(ctx context.Context, event any) error {
	typeName := contracts.TypeNameOf(event)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", typeName, err)
	}

	correlationID := correlationOf(event)
	rec := domain.NewOutboxRecord(typeName, payload, correlationID)

	err = s.tx.WithTransaction(ctx, func(ctx context.Context, repos application.TxRepositories) error {
		return repos.Outbox.Create(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", typeName, err)
	}

	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("eager publish failed, leaving record for dispatcher",
			"correlation_id", correlationID, "type", typeName, "error", err)
		return nil
	}

	if err := s.outbox.MarkPublished(ctx, rec.ID, s.now().UTC()); err != nil {
		// Worst case the dispatcher republishes; consumers absorb duplicates.
		s.logger.Warn("failed to mark outbox record published",
			"outbox_id", rec.ID, "error", err)
	}
	return nil
}

func correlationOf(event any) uuid.UUID {
	switch ev := event.(type) {
	case contracts.RequestCompleted:
		return ev.CorrelationID
	case contracts.RequestFailed:
		return ev.CorrelationID
	case contracts.RequestReceived:
		return ev.CorrelationID
	case contracts.DispatchToPartner:
		return ev.CorrelationID
	}
	return uuid.Nil
}
