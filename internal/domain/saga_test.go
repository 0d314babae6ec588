package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
)

func receivedEvent(id uuid.UUID) contracts.RequestReceived {
	return contracts.RequestReceived{
		CorrelationID: id,
		PartnerCode:   "P1",
		Type:          "ORDER",
		Payload:       json.RawMessage(`{"orderId":"1"}`),
		CreatedAt:     time.Now().UTC(),
	}
}

func TestTransition_InitialToProcessing(t *testing.T) {
	id := uuid.New()
	ev := receivedEvent(id)
	state := domain.NewSagaState(ev)

	out, err := domain.Transition(*state, ev, time.Now())

	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, domain.SagaProcessing, out.State.CurrentState)
	assert.Equal(t, "P1", out.State.PartnerCode)
	assert.Equal(t, "ORDER", out.State.RequestType)

	require.Len(t, out.Effects, 1)
	cmd, ok := out.Effects[0].(contracts.DispatchToPartner)
	require.True(t, ok)
	assert.Equal(t, id, cmd.CorrelationID)
	assert.Equal(t, "P1", cmd.PartnerCode)
	assert.JSONEq(t, `{"orderId":"1"}`, string(cmd.Payload))
}

func TestTransition_ProcessingToTerminal(t *testing.T) {
	tests := []struct {
		name  string
		event any
		want  string
	}{
		{"completed", contracts.RequestCompleted{Status: "Completed"}, domain.SagaSucceeded},
		{"failed", contracts.RequestFailed{Reason: "HTTP 500"}, domain.SagaFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := domain.SagaState{
				CorrelationID: uuid.New(),
				CurrentState:  domain.SagaProcessing,
			}

			out, err := domain.Transition(state, tt.event, time.Now())

			require.NoError(t, err)
			assert.True(t, out.Changed)
			assert.Equal(t, tt.want, out.State.CurrentState)
			require.NotNil(t, out.State.UpdatedAt)
			assert.Empty(t, out.Effects)
		})
	}
}

func TestTransition_TerminalStatesAreMonotonic(t *testing.T) {
	tests := []struct {
		name         string
		state        string
		event        any
		wantConflict string
	}{
		{"duplicate completed", domain.SagaSucceeded, contracts.RequestCompleted{}, ""},
		{"late failed cannot downgrade", domain.SagaSucceeded, contracts.RequestFailed{}, "failed_after_succeeded"},
		{"duplicate failed", domain.SagaFailed, contracts.RequestFailed{}, ""},
		{"late completed cannot upgrade", domain.SagaFailed, contracts.RequestCompleted{}, "completed_after_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := domain.SagaState{
				CorrelationID: uuid.New(),
				CurrentState:  tt.state,
				Version:       3,
			}

			out, err := domain.Transition(state, tt.event, time.Now())

			require.NoError(t, err)
			assert.True(t, out.Absorbed)
			assert.False(t, out.Changed)
			assert.Equal(t, tt.state, out.State.CurrentState)
			assert.Equal(t, tt.wantConflict, out.Conflict)
			assert.Empty(t, out.Effects)
		})
	}
}

func TestTransition_RedeliveredReceivedIsAbsorbed(t *testing.T) {
	id := uuid.New()
	state := domain.SagaState{
		CorrelationID: id,
		CurrentState:  domain.SagaProcessing,
	}

	out, err := domain.Transition(state, receivedEvent(id), time.Now())

	require.NoError(t, err)
	assert.True(t, out.Absorbed)
	assert.False(t, out.Changed)
	assert.Empty(t, out.Effects)
}

func TestFail_FinalizesFromInitial(t *testing.T) {
	ev := receivedEvent(uuid.New())
	state := domain.NewSagaState(ev)

	out := domain.Fail(*state, "unknown partner code", time.Now())

	assert.True(t, out.Changed)
	assert.Equal(t, domain.SagaFailed, out.State.CurrentState)
	require.Len(t, out.Effects, 1)
	failed, ok := out.Effects[0].(contracts.RequestFailed)
	require.True(t, ok)
	assert.Equal(t, state.CorrelationID, failed.CorrelationID)
	assert.Equal(t, "unknown partner code", failed.Reason)
}
