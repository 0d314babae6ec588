package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/partner-hub/internal/application/mocks"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
	"github.com/relaypoint/partner-hub/internal/testutil"
)

func stageEvent(t *testing.T, outbox *mocks.MockOutboxRepository, event any) *domain.OutboxRecord {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	rec := domain.NewOutboxRecord(contracts.TypeNameOf(event), payload, uuid.New())
	require.NoError(t, outbox.Create(context.Background(), rec))
	return rec
}

func TestProcessBatchPublishesStagedRecords(t *testing.T) {
	outbox := mocks.NewMockOutboxRepository()
	bus := mocks.NewMockBus()
	stageEvent(t, outbox, contracts.RequestCompleted{CorrelationID: uuid.New(), PartnerCode: "P1", StatusCode: 200, Status: "Completed"})
	stageEvent(t, outbox, contracts.RequestFailed{CorrelationID: uuid.New(), PartnerCode: "P2", Reason: "timeout"})

	w := NewOutboxDispatcher(outbox, bus, time.Second, 100, testutil.Logger())
	require.NoError(t, w.ProcessBatch(context.Background()))

	assert.Equal(t, 0, outbox.Unpublished())
	assert.Len(t, bus.PublishedOfType(contracts.TypeRequestCompleted), 1)
	assert.Len(t, bus.PublishedOfType(contracts.TypeRequestFailed), 1)
}

func TestProcessBatchRepublishesValueMessages(t *testing.T) {
	outbox := mocks.NewMockOutboxRepository()
	bus := mocks.NewMockBus()
	stageEvent(t, outbox, contracts.RequestCompleted{CorrelationID: uuid.New(), PartnerCode: "P1", StatusCode: 200, Status: "Completed"})

	w := NewOutboxDispatcher(outbox, bus, time.Second, 100, testutil.Logger())
	require.NoError(t, w.ProcessBatch(context.Background()))

	// Consumers type-switch on value messages; a republished record must
	// match what the eager path emits.
	published := bus.PublishedOfType(contracts.TypeRequestCompleted)
	require.Len(t, published, 1)
	_, ok := published[0].(contracts.RequestCompleted)
	assert.True(t, ok, "expected value message, got %T", published[0])
}

func TestProcessBatchForceSkipsUnknownTypes(t *testing.T) {
	outbox := mocks.NewMockOutboxRepository()
	bus := mocks.NewMockBus()
	rec := domain.NewOutboxRecord("LegacyNotification", []byte(`{}`), uuid.New())
	require.NoError(t, outbox.Create(context.Background(), rec))
	stageEvent(t, outbox, contracts.RequestFailed{CorrelationID: uuid.New(), PartnerCode: "P1", Reason: "timeout"})

	w := NewOutboxDispatcher(outbox, bus, time.Second, 100, testutil.Logger())
	require.NoError(t, w.ProcessBatch(context.Background()))

	// The unknown record is marked published without a publish so it cannot
	// starve the records behind it.
	assert.Equal(t, 0, outbox.Unpublished())
	assert.Len(t, bus.Published, 1)
}

func TestProcessBatchKeepsFailedRecordsForNextCycle(t *testing.T) {
	outbox := mocks.NewMockOutboxRepository()
	bus := mocks.NewMockBus()
	first := stageEvent(t, outbox, contracts.RequestCompleted{CorrelationID: uuid.New(), PartnerCode: "P1", StatusCode: 200})
	stageEvent(t, outbox, contracts.RequestFailed{CorrelationID: uuid.New(), PartnerCode: "P2", Reason: "timeout"})

	calls := 0
	bus.PublishFn = func(ctx context.Context, msg any) error {
		calls++
		if contracts.TypeNameOf(msg) == contracts.TypeRequestCompleted {
			return errors.New("broker unavailable")
		}
		return nil
	}

	w := NewOutboxDispatcher(outbox, bus, time.Second, 100, testutil.Logger())
	require.NoError(t, w.ProcessBatch(context.Background()))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, outbox.Unpublished())

	recs, err := outbox.FindUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, first.ID, recs[0].ID)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	outbox := mocks.NewMockOutboxRepository()
	bus := mocks.NewMockBus()
	w := NewOutboxDispatcher(outbox, bus, 10*time.Millisecond, 100, testutil.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	stageEvent(t, outbox, contracts.RequestFailed{CorrelationID: uuid.New(), PartnerCode: "P1", Reason: "timeout"})

	require.Eventually(t, func() bool {
		return outbox.Unpublished() == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
