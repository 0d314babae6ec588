// Package mocks provides in-memory, function-field doubles for the
// application ports. Each method uses the map-backed default unless the
// corresponding Fn override is set.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
)

// MockRequestRepository

type MockRequestRepository struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*domain.Request

	CreateFn              func(ctx context.Context, req *domain.Request) error
	FindByCorrelationIDFn func(ctx context.Context, correlationID uuid.UUID) (*domain.Request, error)
	UpdateStatusFn        func(ctx context.Context, correlationID uuid.UUID, status string, updatedAt time.Time) error
}

func NewMockRequestRepository() *MockRequestRepository {
	return &MockRequestRepository{requests: make(map[uuid.UUID]*domain.Request)}
}

func (m *MockRequestRepository) Create(ctx context.Context, req *domain.Request) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.CorrelationID] = &cp
	return nil
}

func (m *MockRequestRepository) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Request, error) {
	if m.FindByCorrelationIDFn != nil {
		return m.FindByCorrelationIDFn(ctx, correlationID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if req, ok := m.requests[correlationID]; ok {
		cp := *req
		return &cp, nil
	}
	return nil, domain.ErrRequestNotFound
}

func (m *MockRequestRepository) UpdateStatus(ctx context.Context, correlationID uuid.UUID, status string, updatedAt time.Time) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, correlationID, status, updatedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[correlationID]
	if !ok {
		return domain.ErrRequestNotFound
	}
	req.Status = status
	req.UpdatedAt = &updatedAt
	return nil
}

// Count returns the number of stored request rows.
func (m *MockRequestRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// MockDedupKeyRepository

type MockDedupKeyRepository struct {
	mu   sync.RWMutex
	keys map[string]*domain.DedupKey

	CreateFn    func(ctx context.Context, key *domain.DedupKey) error
	FindByKeyFn func(ctx context.Context, key string) (*domain.DedupKey, error)
}

func NewMockDedupKeyRepository() *MockDedupKeyRepository {
	return &MockDedupKeyRepository{keys: make(map[string]*domain.DedupKey)}
}

func (m *MockDedupKeyRepository) Create(ctx context.Context, key *domain.DedupKey) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.keys[key.Key] = &cp
	return nil
}

func (m *MockDedupKeyRepository) FindByKey(ctx context.Context, key string) (*domain.DedupKey, error) {
	if m.FindByKeyFn != nil {
		return m.FindByKeyFn(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if dk, ok := m.keys[key]; ok {
		cp := *dk
		return &cp, nil
	}
	return nil, nil
}

// MockInboxRepository

type MockInboxRepository struct {
	mu      sync.RWMutex
	Records []*domain.InboxRecord

	CreateFn func(ctx context.Context, rec *domain.InboxRecord) error
}

func NewMockInboxRepository() *MockInboxRepository {
	return &MockInboxRepository{}
}

func (m *MockInboxRepository) Create(ctx context.Context, rec *domain.InboxRecord) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.Records = append(m.Records, &cp)
	return nil
}

// MockOutboxRepository

type MockOutboxRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.OutboxRecord
	order   []uuid.UUID

	CreateFn          func(ctx context.Context, rec *domain.OutboxRecord) error
	FindUnpublishedFn func(ctx context.Context, limit int) ([]*domain.OutboxRecord, error)
	MarkPublishedFn   func(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{records: make(map[uuid.UUID]*domain.OutboxRecord)}
}

func (m *MockOutboxRepository) Create(ctx context.Context, rec *domain.OutboxRecord) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *MockOutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	if m.FindUnpublishedFn != nil {
		return m.FindUnpublishedFn(ctx, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.OutboxRecord
	for _, id := range m.order {
		rec := m.records[id]
		if rec.Published {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	if m.MarkPublishedFn != nil {
		return m.MarkPublishedFn(ctx, id, publishedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	rec.Published = true
	rec.PublishedAt = &publishedAt
	return nil
}

// Staged returns how many records were ever created, published or not.
func (m *MockOutboxRepository) Staged() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Unpublished returns how many records are still pending.
func (m *MockOutboxRepository) Unpublished() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records {
		if !rec.Published {
			n++
		}
	}
	return n
}

// MockSagaRepository

type MockSagaRepository struct {
	mu    sync.RWMutex
	sagas map[uuid.UUID]*domain.SagaState

	FindByCorrelationIDFn func(ctx context.Context, correlationID uuid.UUID) (*domain.SagaState, error)
	InsertFn              func(ctx context.Context, state *domain.SagaState) error
	UpdateFn              func(ctx context.Context, state *domain.SagaState) error
}

func NewMockSagaRepository() *MockSagaRepository {
	return &MockSagaRepository{sagas: make(map[uuid.UUID]*domain.SagaState)}
}

func (m *MockSagaRepository) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.SagaState, error) {
	if m.FindByCorrelationIDFn != nil {
		return m.FindByCorrelationIDFn(ctx, correlationID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sagas[correlationID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrSagaNotFound
}

func (m *MockSagaRepository) Insert(ctx context.Context, state *domain.SagaState) error {
	if m.InsertFn != nil {
		return m.InsertFn(ctx, state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	cp.Version = 1
	m.sagas[state.CorrelationID] = &cp
	state.Version = 1
	return nil
}

func (m *MockSagaRepository) Update(ctx context.Context, state *domain.SagaState) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sagas[state.CorrelationID]
	if !ok {
		return domain.ErrSagaNotFound
	}
	if current.Version != state.Version {
		return domain.ErrVersionConflict
	}
	cp := *state
	cp.Version++
	m.sagas[state.CorrelationID] = &cp
	state.Version = cp.Version
	return nil
}

// MockTransactionCoordinator runs the unit against the supplied mocks with
// no real atomicity; tests inject failures through the repo overrides.
type MockTransactionCoordinator struct {
	Repos application.TxRepositories

	WithTransactionFn func(ctx context.Context, fn func(ctx context.Context, repos application.TxRepositories) error) error
}

func (m *MockTransactionCoordinator) WithTransaction(ctx context.Context, fn func(ctx context.Context, repos application.TxRepositories) error) error {
	if m.WithTransactionFn != nil {
		return m.WithTransactionFn(ctx, fn)
	}
	return fn(ctx, m.Repos)
}

// MockKeyLocker serializes callers per key, mirroring the distributed lock.
type MockKeyLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	WithLockFn func(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func NewMockKeyLocker() *MockKeyLocker {
	return &MockKeyLocker{locks: make(map[string]*sync.Mutex)}
}

func (m *MockKeyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if m.WithLockFn != nil {
		return m.WithLockFn(ctx, key, fn)
	}
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

// MockBus records published messages and delivers them synchronously to
// subscribed handlers.
type MockBus struct {
	mu        sync.Mutex
	Published []any
	handlers  map[string][]func(ctx context.Context, msg any) error

	PublishFn func(ctx context.Context, msg any) error
}

func NewMockBus() *MockBus {
	return &MockBus{handlers: make(map[string][]func(ctx context.Context, msg any) error)}
}

func (m *MockBus) Publish(ctx context.Context, msg any) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, msg)
	}
	m.mu.Lock()
	m.Published = append(m.Published, msg)
	handlers := m.handlers[contracts.TypeNameOf(msg)]
	m.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockBus) Subscribe(typeName string, handler func(ctx context.Context, msg any) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[typeName] = append(m.handlers[typeName], handler)
}

// PublishedOfType returns the published messages matching a type name.
func (m *MockBus) PublishedOfType(typeName string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, msg := range m.Published {
		if contracts.TypeNameOf(msg) == typeName {
			out = append(out, msg)
		}
	}
	return out
}

// MockPartnerClient

type MockPartnerClient struct {
	SendFn func(ctx context.Context, cmd contracts.DispatchToPartner) (*application.PartnerResponse, error)
}

func (m *MockPartnerClient) Send(ctx context.Context, cmd contracts.DispatchToPartner) (*application.PartnerResponse, error) {
	if m.SendFn != nil {
		return m.SendFn(ctx, cmd)
	}
	return &application.PartnerResponse{Success: true, StatusCode: 200, Attempts: 1}, nil
}
