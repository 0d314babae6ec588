package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/application/mocks"
	"github.com/relaypoint/partner-hub/internal/config"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
	"github.com/relaypoint/partner-hub/internal/testutil"
)

// scenarioFixture wires intake, orchestrator, dispatch and projector onto one
// synchronous bus, covering the full accepted-to-terminal flow in process.
type scenarioFixture struct {
	requests *mocks.MockRequestRepository
	sagas    *mocks.MockSagaRepository
	outbox   *mocks.MockOutboxRepository
	client   *mocks.MockPartnerClient
	bus      *mocks.MockBus
	intake   *IntakeService
}

func newScenarioFixture(t *testing.T) *scenarioFixture {
	t.Helper()
	logger := testutil.Logger()

	requests := mocks.NewMockRequestRepository()
	dedup := mocks.NewMockDedupKeyRepository()
	inbox := mocks.NewMockInboxRepository()
	outbox := mocks.NewMockOutboxRepository()
	sagas := mocks.NewMockSagaRepository()
	tx := &mocks.MockTransactionCoordinator{Repos: application.TxRepositories{
		Requests:  requests,
		DedupKeys: dedup,
		Inbox:     inbox,
		Outbox:    outbox,
		Sagas:     sagas,
	}}
	bus := mocks.NewMockBus()
	client := &mocks.MockPartnerClient{}

	rules := NewRulesService(config.RulesConfig{
		AllowedPartners: []string{"P1"},
		AllowedTypes:    []string{"ORDER"},
	})

	NewOrchestratorService(sagas, rules, bus, logger).Register(bus)
	NewDispatchService(client, tx, outbox, bus, logger).Register(bus)
	NewProjectorService(requests, logger).Register(bus)

	return &scenarioFixture{
		requests: requests,
		sagas:    sagas,
		outbox:   outbox,
		client:   client,
		bus:      bus,
		intake:   NewIntakeService(mocks.NewMockKeyLocker(), tx, requests, dedup, bus, logger),
	}
}

func TestScenarioSuccessfulDispatch(t *testing.T) {
	f := newScenarioFixture(t)
	f.client.SendFn = func(ctx context.Context, cmd contracts.DispatchToPartner) (*application.PartnerResponse, error) {
		return &application.PartnerResponse{Success: true, StatusCode: 200, Body: []byte(`{"ok":true}`), Attempts: 1}, nil
	}

	cmd := ReceiveCommand{PartnerCode: "P1", Type: "ORDER", Payload: `{"orderId":"1"}`, IdempotencyKey: "K1"}
	first, err := f.intake.Receive(context.Background(), cmd)
	require.NoError(t, err)

	// The synchronous bus has already driven the whole chain.
	req, err := f.requests.FindByCorrelationID(context.Background(), first.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, req.Status)

	saga, err := f.sagas.FindByCorrelationID(context.Background(), first.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaSucceeded, saga.CurrentState)

	// An identical repeat resolves to the same correlation ID with no second
	// row and no second dispatch.
	second, err := f.intake.Receive(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, first.CorrelationID, second.CorrelationID)
	assert.Equal(t, 1, f.requests.Count())
	assert.Len(t, f.bus.PublishedOfType(contracts.TypeDispatchToPartner), 1)
}

func TestScenarioFailedDispatch(t *testing.T) {
	f := newScenarioFixture(t)
	f.client.SendFn = func(ctx context.Context, cmd contracts.DispatchToPartner) (*application.PartnerResponse, error) {
		return &application.PartnerResponse{Success: false, StatusCode: 503, Attempts: 5}, nil
	}

	result, err := f.intake.Receive(context.Background(), ReceiveCommand{
		PartnerCode: "P1", Type: "ORDER", Payload: `{"orderId":"2"}`, IdempotencyKey: "K2",
	})
	require.NoError(t, err)

	req, err := f.requests.FindByCorrelationID(context.Background(), result.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, req.Status)

	saga, err := f.sagas.FindByCorrelationID(context.Background(), result.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaFailed, saga.CurrentState)
	versionAfterTerminal := saga.Version

	// A redelivered duplicate of the terminal event is absorbed everywhere.
	err = f.bus.Publish(context.Background(), contracts.RequestFailed{
		CorrelationID: result.CorrelationID,
		PartnerCode:   "P1",
		Reason:        "partner returned status 503",
	})
	require.NoError(t, err)

	saga, err = f.sagas.FindByCorrelationID(context.Background(), result.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaFailed, saga.CurrentState)
	assert.Equal(t, versionAfterTerminal, saga.Version)
}

func TestScenarioDisallowedPartnerFailsRequest(t *testing.T) {
	f := newScenarioFixture(t)
	called := false
	f.client.SendFn = func(ctx context.Context, cmd contracts.DispatchToPartner) (*application.PartnerResponse, error) {
		called = true
		return &application.PartnerResponse{Success: true, StatusCode: 200, Attempts: 1}, nil
	}

	result, err := f.intake.Receive(context.Background(), ReceiveCommand{
		PartnerCode: "P9", Type: "ORDER", Payload: `{"orderId":"3"}`, IdempotencyKey: "K3",
	})
	require.NoError(t, err)

	req, err := f.requests.FindByCorrelationID(context.Background(), result.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, req.Status)
	assert.False(t, called)
}
