package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/partner-hub/internal/contracts"
)

// Saga states. Succeeded and Failed are terminal and absorb any further
// terminal event without changing state.
const (
	SagaInitial    = "Initial"
	SagaProcessing = "Processing"
	SagaSucceeded  = "Succeeded"
	SagaFailed     = "Failed"
)

// SagaState is the persisted instance of the per-request state machine,
// keyed by correlation ID. Version is the optimistic-concurrency token;
// a save with a stale version must not overwrite.
type SagaState struct {
	CorrelationID uuid.UUID
	CurrentState  string
	PartnerCode   string
	RequestType   string
	Payload       []byte
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	Version       int64
}

// NewSagaState creates the instance for the first RequestReceived of a
// correlation ID. Only that event may create an instance.
func NewSagaState(ev contracts.RequestReceived) *SagaState {
	return &SagaState{
		CorrelationID: ev.CorrelationID,
		CurrentState:  SagaInitial,
		PartnerCode:   ev.PartnerCode,
		RequestType:   ev.Type,
		Payload:       ev.Payload,
		CreatedAt:     ev.CreatedAt,
	}
}

// Outcome describes the result of applying one event to a saga instance.
// Effects are published only after the state write commits.
type Outcome struct {
	State    SagaState
	Changed  bool
	Effects  []any
	Absorbed bool
	// Conflict names a late opposite-outcome terminal event that was
	// absorbed, e.g. "failed_after_succeeded". Empty for plain duplicates.
	Conflict string
}

// Transition is the pure state machine over (state, event). It never touches
// storage or the bus. Transitions are monotonic: once terminal, the outcome
// can be neither downgraded nor upgraded by later events.
func Transition(s SagaState, event any, now time.Time) (Outcome, error) {
	switch ev := event.(type) {
	case contracts.RequestReceived:
		if s.CurrentState != SagaInitial {
			// Redelivered intake event for an instance already past
			// Initial. At-least-once delivery makes this routine.
			return Outcome{State: s, Absorbed: true}, nil
		}
		next := s
		next.CurrentState = SagaProcessing
		next.PartnerCode = ev.PartnerCode
		next.RequestType = ev.Type
		next.Payload = ev.Payload
		return Outcome{
			State:   next,
			Changed: true,
			Effects: []any{contracts.DispatchToPartner{
				CorrelationID: s.CorrelationID,
				PartnerCode:   ev.PartnerCode,
				Payload:       ev.Payload,
			}},
		}, nil

	case contracts.RequestCompleted:
		return terminal(s, SagaSucceeded, "completed_after_failed", now), nil

	case contracts.RequestFailed:
		return terminal(s, SagaFailed, "failed_after_succeeded", now), nil
	}

	return Outcome{}, fmt.Errorf("saga %s: unexpected event %T", s.CorrelationID, event)
}

func terminal(s SagaState, target, conflict string, now time.Time) Outcome {
	switch s.CurrentState {
	case SagaProcessing:
		next := s
		next.CurrentState = target
		next.UpdatedAt = &now
		return Outcome{State: next, Changed: true}
	case target:
		// Duplicate delivery of the terminal event already taken.
		return Outcome{State: s, Absorbed: true}
	case SagaInitial:
		return Outcome{State: s, Absorbed: true}
	default:
		// Opposite terminal event arriving after the instance finalized.
		// Only the first terminal event taken determines the outcome.
		return Outcome{State: s, Absorbed: true, Conflict: conflict}
	}
}

// Fail finalizes an instance straight from Initial when synchronous
// validation rejects the request, emitting the failure event in the same
// outcome so the projector can record it.
func Fail(s SagaState, reason string, now time.Time) Outcome {
	next := s
	next.CurrentState = SagaFailed
	next.UpdatedAt = &now
	return Outcome{
		State:   next,
		Changed: true,
		Effects: []any{contracts.RequestFailed{
			CorrelationID: s.CorrelationID,
			PartnerCode:   s.PartnerCode,
			Reason:        reason,
		}},
	}
}
