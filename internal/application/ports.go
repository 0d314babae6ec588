package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
)

// RequestRepository is the port for the request ledger.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Request, error)
	UpdateStatus(ctx context.Context, correlationID uuid.UUID, status string, updatedAt time.Time) error
}

// DedupKeyRepository is the port for the idempotency-key mapping.
// FindByKey returns (nil, nil) on a miss.
type DedupKeyRepository interface {
	Create(ctx context.Context, key *domain.DedupKey) error
	FindByKey(ctx context.Context, key string) (*domain.DedupKey, error)
}

// InboxRepository stores the durable copy of accepted events.
type InboxRepository interface {
	Create(ctx context.Context, rec *domain.InboxRecord) error
}

// OutboxRepository stages outgoing events for at-least-once publication.
type OutboxRepository interface {
	Create(ctx context.Context, rec *domain.OutboxRecord) error
	FindUnpublished(ctx context.Context, limit int) ([]*domain.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

// SagaRepository persists saga instances. Update applies optimistic
// concurrency and returns domain.ErrVersionConflict for a losing writer.
type SagaRepository interface {
	FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.SagaState, error)
	Insert(ctx context.Context, state *domain.SagaState) error
	Update(ctx context.Context, state *domain.SagaState) error
}

// TxRepositories bundles the repositories bound to one open transaction.
type TxRepositories struct {
	Requests  RequestRepository
	DedupKeys DedupKeyRepository
	Inbox     InboxRepository
	Outbox    OutboxRepository
	Sagas     SagaRepository
}

// TransactionCoordinator runs fn inside one atomic unit; the repositories
// handed to fn all share that unit. A returned error rolls everything back.
type TransactionCoordinator interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

// KeyLocker is the per-key mutual-exclusion primitive guarding the dedup
// check. Acquisition failure must surface as an error, not silently proceed.
type KeyLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Bus is the at-least-once publish/subscribe transport. A handler error
// triggers redelivery; handlers must therefore be idempotent.
type Bus interface {
	Publish(ctx context.Context, msg any) error
	Subscribe(typeName string, handler func(ctx context.Context, msg any) error)
}

type redeliveryKey struct{}

// WithRedeliveryCount marks the handler context with how many times the
// message was already delivered and failed. The transport sets it; handlers
// read it through RedeliveryCount to skip side effects already performed.
func WithRedeliveryCount(ctx context.Context, count int) context.Context {
	return context.WithValue(ctx, redeliveryKey{}, count)
}

// RedeliveryCount reports the prior delivery attempts for the message being
// handled. Zero means first delivery.
func RedeliveryCount(ctx context.Context) int {
	count, _ := ctx.Value(redeliveryKey{}).(int)
	return count
}

// PartnerResponse is the well-formed outcome of a partner call. A transport
// fault is reported as an error instead.
type PartnerResponse struct {
	Success    bool
	StatusCode int
	Body       []byte
	Attempts   int
}

// PartnerClient calls the downstream partner. Implementations carry the
// resilience policy (bulkhead, timeout, retry, breaker).
type PartnerClient interface {
	Send(ctx context.Context, cmd contracts.DispatchToPartner) (*PartnerResponse, error)
}
