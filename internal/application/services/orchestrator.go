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
	"github.com/relaypoint/partner-hub/internal/observability"
)

// OrchestratorService drives the per-request state machine. It loads the
// instance addressed by the event's correlation ID, applies the pure
// transition, persists the result under optimistic concurrency and publishes
// the effects only after the write succeeds.
type OrchestratorService struct {
	sagas  application.SagaRepository
	rules  *RulesService
	bus    application.Bus
	logger *slog.Logger
	now    func() time.Time
}

func NewOrchestratorService(
	sagas application.SagaRepository,
	rules *RulesService,
	bus application.Bus,
	logger *slog.Logger,
) *OrchestratorService {
	return &OrchestratorService{
		sagas:  sagas,
		rules:  rules,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// Register binds the service to every event type the saga consumes.
func (s *OrchestratorService) Register(bus application.Bus) {
	bus.Subscribe(contracts.TypeRequestReceived, s.HandleEvent)
	bus.Subscribe(contracts.TypeRequestCompleted, s.HandleEvent)
	bus.Subscribe(contracts.TypeRequestFailed, s.HandleEvent)
}

func (s *OrchestratorService) HandleEvent(ctx context.Context, msg any) error {
	switch ev := msg.(type) {
	case contracts.RequestReceived:
		return s.handleReceived(ctx, ev)
	case contracts.RequestCompleted:
		return s.applyTerminal(ctx, ev.CorrelationID, ev)
	case contracts.RequestFailed:
		return s.applyTerminal(ctx, ev.CorrelationID, ev)
	}
	return fmt.Errorf("orchestrator: unexpected message %T", msg)
}

func (s *OrchestratorService) handleReceived(ctx context.Context, ev contracts.RequestReceived) error {
	state, err := s.sagas.FindByCorrelationID(ctx, ev.CorrelationID)
	switch {
	case errors.Is(err, domain.ErrSagaNotFound):
		state = domain.NewSagaState(ev)
		if err := s.sagas.Insert(ctx, state); err != nil {
			if !errors.Is(err, domain.ErrVersionConflict) {
				return fmt.Errorf("failed to create saga %s: %w", ev.CorrelationID, err)
			}
			// Lost the create race; the winner's instance is authoritative.
			state, err = s.sagas.FindByCorrelationID(ctx, ev.CorrelationID)
			if err != nil {
				return fmt.Errorf("failed to reload saga %s: %w", ev.CorrelationID, err)
			}
		}
	case err != nil:
		return fmt.Errorf("failed to load saga %s: %w", ev.CorrelationID, err)
	}

	now := s.now().UTC()

	if state.CurrentState == domain.SagaInitial {
		if err := s.rules.Validate(ev.PartnerCode, ev.Type); err != nil {
			s.logger.Warn("request rejected by rules",
				"correlation_id", ev.CorrelationID,
				"partner_code", ev.PartnerCode,
				"type", ev.Type,
				"error", err)
			return s.commit(ctx, domain.Fail(*state, err.Error(), now))
		}
	}

	outcome, err := domain.Transition(*state, ev, now)
	if err != nil {
		return err
	}

	for i, eff := range outcome.Effects {
		if cmd, ok := eff.(contracts.DispatchToPartner); ok {
			cmd.Endpoint = s.rules.EndpointFor(cmd.PartnerCode)
			outcome.Effects[i] = cmd
		}
	}

	return s.commit(ctx, outcome)
}

func (s *OrchestratorService) applyTerminal(ctx context.Context, correlationID uuid.UUID, event any) error {
	state, err := s.sagas.FindByCorrelationID(ctx, correlationID)
	if err != nil {
		// Terminal events never create instances. An unknown correlation ID
		// goes back to the bus for redelivery or dead-lettering.
		return fmt.Errorf("failed to load saga %s: %w", correlationID, err)
	}

	outcome, err := domain.Transition(*state, event, s.now().UTC())
	if err != nil {
		return err
	}

	if outcome.Conflict != "" {
		observability.RecordSagaConflict(outcome.Conflict)
		s.logger.Warn("late terminal event absorbed",
			"correlation_id", correlationID,
			"state", state.CurrentState,
			"direction", outcome.Conflict)
	}

	return s.commit(ctx, outcome)
}

// commit persists a changed instance and then, only then, publishes its
// effects. A version conflict propagates so the bus redelivers and the
// losing writer re-applies against the fresh state.
func (s *OrchestratorService) commit(ctx context.Context, outcome domain.Outcome) error {
	if outcome.Absorbed || !outcome.Changed {
		if outcome.Absorbed && outcome.Conflict == "" {
			s.logger.Debug("duplicate event absorbed", "correlation_id", outcome.State.CorrelationID)
		}
		return nil
	}

	st := outcome.State
	if err := s.sagas.Update(ctx, &st); err != nil {
		return fmt.Errorf("failed to save saga %s: %w", st.CorrelationID, err)
	}

	for _, eff := range outcome.Effects {
		if err := s.bus.Publish(ctx, eff); err != nil {
			return fmt.Errorf("failed to publish %s for saga %s: %w",
				contracts.TypeNameOf(eff), st.CorrelationID, err)
		}
	}
	return nil
}
