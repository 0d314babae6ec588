package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/application/mocks"
	"github.com/relaypoint/partner-hub/internal/application/services"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
	"github.com/relaypoint/partner-hub/internal/testutil"
)

type intakeFixture struct {
	service  *services.IntakeService
	requests *mocks.MockRequestRepository
	dedup    *mocks.MockDedupKeyRepository
	inbox    *mocks.MockInboxRepository
	locker   *mocks.MockKeyLocker
	bus      *mocks.MockBus
}

func newIntakeFixture() *intakeFixture {
	requests := mocks.NewMockRequestRepository()
	dedup := mocks.NewMockDedupKeyRepository()
	inbox := mocks.NewMockInboxRepository()
	locker := mocks.NewMockKeyLocker()
	bus := mocks.NewMockBus()

	tx := &mocks.MockTransactionCoordinator{
		Repos: application.TxRepositories{
			Requests:  requests,
			DedupKeys: dedup,
			Inbox:     inbox,
		},
	}

	return &intakeFixture{
		service:  services.NewIntakeService(locker, tx, requests, dedup, bus, testutil.Logger()),
		requests: requests,
		dedup:    dedup,
		inbox:    inbox,
		locker:   locker,
		bus:      bus,
	}
}

func TestIntakeService_Receive_NewKey(t *testing.T) {
	f := newIntakeFixture()

	cmd := services.ReceiveCommand{
		PartnerCode:    "P1",
		Type:           "ORDER",
		Payload:        `{"orderId":"1"}`,
		IdempotencyKey: "K1",
	}

	result, err := f.service.Receive(context.Background(), cmd)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, result.CorrelationID)
	assert.Equal(t, domain.StatusReceived, result.Status)
	assert.False(t, result.CreatedAt.IsZero())

	assert.Equal(t, 1, f.requests.Count())
	require.Len(t, f.inbox.Records, 1)
	assert.Equal(t, contracts.TypeRequestReceived, f.inbox.Records[0].MessageType)

	published := f.bus.PublishedOfType(contracts.TypeRequestReceived)
	require.Len(t, published, 1)
	ev := published[0].(contracts.RequestReceived)
	assert.Equal(t, result.CorrelationID, ev.CorrelationID)
	assert.Equal(t, "P1", ev.PartnerCode)
	assert.JSONEq(t, `{"orderId":"1"}`, string(ev.Payload))
}

func TestIntakeService_Receive_DuplicateKeyReturnsSameCorrelationID(t *testing.T) {
	f := newIntakeFixture()

	cmd := services.ReceiveCommand{
		PartnerCode:    "P1",
		Type:           "ORDER",
		Payload:        `{"orderId":"1"}`,
		IdempotencyKey: "K1",
	}

	first, err := f.service.Receive(context.Background(), cmd)
	require.NoError(t, err)

	second, err := f.service.Receive(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, first.CorrelationID, second.CorrelationID)
	assert.Equal(t, 1, f.requests.Count())
	// The accepted event is published once, on first acceptance only.
	assert.Len(t, f.bus.PublishedOfType(contracts.TypeRequestReceived), 1)
}

func TestIntakeService_Receive_ConcurrentDuplicates(t *testing.T) {
	f := newIntakeFixture()

	cmd := services.ReceiveCommand{
		PartnerCode:    "P1",
		Type:           "ORDER",
		Payload:        `{"orderId":"1"}`,
		IdempotencyKey: "K1",
	}

	const callers = 8
	results := make([]*services.ReceiveResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.service.Receive(context.Background(), cmd)
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.requests.Count())
	for _, r := range results[1:] {
		assert.Equal(t, results[0].CorrelationID, r.CorrelationID)
	}
}

func TestIntakeService_Receive_LockFailureIsTransient(t *testing.T) {
	f := newIntakeFixture()
	f.locker.WithLockFn = func(ctx context.Context, key string, fn func(ctx context.Context) error) error {
		return application.ErrLockNotAcquired
	}

	_, err := f.service.Receive(context.Background(), services.ReceiveCommand{
		PartnerCode:    "P1",
		Type:           "ORDER",
		Payload:        "{}",
		IdempotencyKey: "K1",
	})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeLockUnavailable, svcErr.Code)
	// No correlation ID was minted and nothing was persisted.
	assert.Equal(t, 0, f.requests.Count())
}

func TestIntakeService_Receive_DedupWithoutRequestRowIsFatal(t *testing.T) {
	f := newIntakeFixture()

	require.NoError(t, f.dedup.Create(context.Background(), &domain.DedupKey{
		ID:            uuid.New(),
		Key:           "K1",
		CorrelationID: uuid.New(),
	}))

	_, err := f.service.Receive(context.Background(), services.ReceiveCommand{
		PartnerCode:    "P1",
		Type:           "ORDER",
		Payload:        "{}",
		IdempotencyKey: "K1",
	})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeConsistency, svcErr.Code)
	assert.ErrorIs(t, err, domain.ErrDedupWithoutRequest)
}

func TestIntakeService_Receive_TransactionFailurePublishesNothing(t *testing.T) {
	f := newIntakeFixture()
	f.requests.CreateFn = func(ctx context.Context, req *domain.Request) error {
		return errors.New("connection reset")
	}

	_, err := f.service.Receive(context.Background(), services.ReceiveCommand{
		PartnerCode:    "P1",
		Type:           "ORDER",
		Payload:        "{}",
		IdempotencyKey: "K1",
	})

	require.Error(t, err)
	assert.Empty(t, f.bus.Published)
}

func TestNormalizePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"json object embeds", `{"orderId":"1"}`, `{"orderId":"1"}`},
		{"json array embeds", ` [1,2,3] `, `[1,2,3]`},
		{"plain text quoted", "hello world", `"hello world"`},
		{"broken json degrades to string", `{"orderId":`, `"{\"orderId\":"`},
		{"empty string", "", `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := services.NormalizePayload(tt.payload)
			assert.True(t, json.Valid(got))
			assert.Equal(t, tt.want, string(got))
		})
	}
}
