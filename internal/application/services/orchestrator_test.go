package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/partner-hub/internal/application/mocks"
	"github.com/relaypoint/partner-hub/internal/config"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
	"github.com/relaypoint/partner-hub/internal/testutil"
)

type orchestratorFixture struct {
	sagas   *mocks.MockSagaRepository
	bus     *mocks.MockBus
	service *OrchestratorService
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	sagas := mocks.NewMockSagaRepository()
	bus := mocks.NewMockBus()
	rules := NewRulesService(config.RulesConfig{
		AllowedPartners: []string{"P1", "P2"},
		AllowedTypes:    []string{"ORDER", "REFUND"},
	})
	return &orchestratorFixture{
		sagas:   sagas,
		bus:     bus,
		service: NewOrchestratorService(sagas, rules, bus, testutil.Logger()),
	}
}

func receivedEvent(correlationID uuid.UUID) contracts.RequestReceived {
	return contracts.RequestReceived{
		CorrelationID: correlationID,
		PartnerCode:   "P1",
		Type:          "ORDER",
		Payload:       json.RawMessage(`{"orderId":"1"}`),
		CreatedAt:     time.Now().UTC(),
	}
}

func TestRequestReceivedStartsProcessing(t *testing.T) {
	f := newOrchestratorFixture(t)
	correlationID := uuid.New()

	err := f.service.HandleEvent(context.Background(), receivedEvent(correlationID))
	require.NoError(t, err)

	state, err := f.sagas.FindByCorrelationID(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaProcessing, state.CurrentState)

	dispatches := f.bus.PublishedOfType(contracts.TypeDispatchToPartner)
	require.Len(t, dispatches, 1)
	cmd := dispatches[0].(contracts.DispatchToPartner)
	assert.Equal(t, correlationID, cmd.CorrelationID)
	assert.Equal(t, "/partners/p1/requests", cmd.Endpoint)
	assert.JSONEq(t, `{"orderId":"1"}`, string(cmd.Payload))
}

func TestRequestReceivedRejectedByRulesFailsSaga(t *testing.T) {
	f := newOrchestratorFixture(t)
	correlationID := uuid.New()
	ev := receivedEvent(correlationID)
	ev.PartnerCode = "NOPE"

	err := f.service.HandleEvent(context.Background(), ev)
	require.NoError(t, err)

	state, err := f.sagas.FindByCorrelationID(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaFailed, state.CurrentState)

	failures := f.bus.PublishedOfType(contracts.TypeRequestFailed)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].(contracts.RequestFailed).Reason, "unknown partner code")
	assert.Empty(t, f.bus.PublishedOfType(contracts.TypeDispatchToPartner))
}

func TestRedeliveredRequestReceivedIsAbsorbed(t *testing.T) {
	f := newOrchestratorFixture(t)
	correlationID := uuid.New()
	ev := receivedEvent(correlationID)

	require.NoError(t, f.service.HandleEvent(context.Background(), ev))
	require.NoError(t, f.service.HandleEvent(context.Background(), ev))

	assert.Len(t, f.bus.PublishedOfType(contracts.TypeDispatchToPartner), 1)
}

func TestRequestCompletedFinalizesSaga(t *testing.T) {
	f := newOrchestratorFixture(t)
	correlationID := uuid.New()
	require.NoError(t, f.service.HandleEvent(context.Background(), receivedEvent(correlationID)))

	err := f.service.HandleEvent(context.Background(), contracts.RequestCompleted{
		CorrelationID: correlationID,
		PartnerCode:   "P1",
		StatusCode:    200,
		Status:        "Completed",
	})
	require.NoError(t, err)

	state, err := f.sagas.FindByCorrelationID(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaSucceeded, state.CurrentState)
	assert.NotNil(t, state.UpdatedAt)
}

func TestLateOppositeTerminalEventDoesNotChangeState(t *testing.T) {
	f := newOrchestratorFixture(t)
	correlationID := uuid.New()
	require.NoError(t, f.service.HandleEvent(context.Background(), receivedEvent(correlationID)))
	require.NoError(t, f.service.HandleEvent(context.Background(), contracts.RequestFailed{
		CorrelationID: correlationID,
		PartnerCode:   "P1",
		Reason:        "partner returned status 500",
	}))

	err := f.service.HandleEvent(context.Background(), contracts.RequestCompleted{
		CorrelationID: correlationID,
		PartnerCode:   "P1",
		StatusCode:    200,
		Status:        "Completed",
	})
	require.NoError(t, err)

	state, err := f.sagas.FindByCorrelationID(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaFailed, state.CurrentState)
}

func TestDuplicateTerminalEventIsAbsorbed(t *testing.T) {
	f := newOrchestratorFixture(t)
	correlationID := uuid.New()
	require.NoError(t, f.service.HandleEvent(context.Background(), receivedEvent(correlationID)))

	failed := contracts.RequestFailed{CorrelationID: correlationID, PartnerCode: "P1", Reason: "timeout"}
	require.NoError(t, f.service.HandleEvent(context.Background(), failed))

	state, err := f.sagas.FindByCorrelationID(context.Background(), correlationID)
	require.NoError(t, err)
	versionAfterFirst := state.Version

	require.NoError(t, f.service.HandleEvent(context.Background(), failed))

	state, err = f.sagas.FindByCorrelationID(context.Background(), correlationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaFailed, state.CurrentState)
	assert.Equal(t, versionAfterFirst, state.Version)
}

func TestTerminalEventForUnknownSagaSurfaces(t *testing.T) {
	f := newOrchestratorFixture(t)

	err := f.service.HandleEvent(context.Background(), contracts.RequestCompleted{
		CorrelationID: uuid.New(),
		PartnerCode:   "P1",
		StatusCode:    200,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSagaNotFound)
}

func TestVersionConflictPropagatesForRedelivery(t *testing.T) {
	f := newOrchestratorFixture(t)
	correlationID := uuid.New()
	require.NoError(t, f.service.HandleEvent(context.Background(), receivedEvent(correlationID)))

	f.sagas.UpdateFn = func(ctx context.Context, state *domain.SagaState) error {
		return domain.ErrVersionConflict
	}

	err := f.service.HandleEvent(context.Background(), contracts.RequestCompleted{
		CorrelationID: correlationID,
		PartnerCode:   "P1",
		StatusCode:    200,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}
