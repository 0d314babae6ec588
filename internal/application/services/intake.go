package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/domain"
	"github.com/relaypoint/partner-hub/internal/observability"
)

// ReceiveCommand is the validated create-request input. The edge guarantees
// the caller identity; the idempotency key is caller-supplied.
type ReceiveCommand struct {
	PartnerCode    string
	Type           string
	Payload        string
	IdempotencyKey string
}

// ReceiveResult is what the caller observes at intake: the correlation ID,
// the current status, and when the request was first accepted.
type ReceiveResult struct {
	CorrelationID uuid.UUID
	Status        string
	CreatedAt     time.Time
}

// IntakeService deduplicates submissions by idempotency key and durably
// accepts new requests: Request row, DedupKey, and InboxRecord in one atomic
// unit, then RequestReceived on the bus.
type IntakeService struct {
	locker   application.KeyLocker
	tx       application.TransactionCoordinator
	requests application.RequestRepository
	dedup    application.DedupKeyRepository
	bus      application.Bus
	logger   *slog.Logger
}

func NewIntakeService(
	locker application.KeyLocker,
	tx application.TransactionCoordinator,
	requests application.RequestRepository,
	dedup application.DedupKeyRepository,
	bus application.Bus,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		locker:   locker,
		tx:       tx,
		requests: requests,
		dedup:    dedup,
		bus:      bus,
		logger:   logger,
	}
}

// Receive resolves the idempotency key under a per-key lock. A known key
// returns the existing correlation ID; a new key creates the request and its
// inbox copy atomically. The RequestReceived event is published only after
// the unit commits and the lock is released.
func (s *IntakeService) Receive(ctx context.Context, cmd ReceiveCommand) (*ReceiveResult, error) {
	var (
		result *ReceiveResult
		event  *contracts.RequestReceived
	)

	err := s.locker.WithLock(ctx, "idempotency:"+cmd.IdempotencyKey, func(ctx context.Context) error {
		existing, err := s.dedup.FindByKey(ctx, cmd.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("lookup dedup key: %w", err)
		}

		if existing != nil {
			req, err := s.requests.FindByCorrelationID(ctx, existing.CorrelationID)
			if err != nil {
				if errors.Is(err, domain.ErrRequestNotFound) {
					s.logger.Error("dedup key without request row",
						"idempotency_key", cmd.IdempotencyKey,
						"correlation_id", existing.CorrelationID,
					)
					return application.NewConsistencyError(domain.ErrDedupWithoutRequest)
				}
				return fmt.Errorf("load request for dedup key: %w", err)
			}

			s.logger.Warn("duplicate idempotency key",
				"idempotency_key", cmd.IdempotencyKey,
				"correlation_id", existing.CorrelationID,
			)
			observability.RecordIntakeDedupHit()

			result = &ReceiveResult{
				CorrelationID: req.CorrelationID,
				Status:        req.Status,
				CreatedAt:     req.CreatedAt,
			}
			return nil
		}

		correlationID := uuid.New()
		req := domain.NewRequest(correlationID, cmd.PartnerCode, cmd.Type, cmd.Payload, cmd.IdempotencyKey)

		inboxPayload, err := inboxEnvelope(correlationID, cmd)
		if err != nil {
			return fmt.Errorf("build inbox payload: %w", err)
		}

		err = s.tx.WithTransaction(ctx, func(ctx context.Context, repos application.TxRepositories) error {
			if err := repos.Requests.Create(ctx, req); err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			if err := repos.DedupKeys.Create(ctx, &domain.DedupKey{
				ID:            uuid.New(),
				Key:           cmd.IdempotencyKey,
				CorrelationID: correlationID,
				CreatedAt:     req.CreatedAt,
			}); err != nil {
				return fmt.Errorf("create dedup key: %w", err)
			}
			if err := repos.Inbox.Create(ctx, &domain.InboxRecord{
				ID:            uuid.New(),
				MessageID:     uuid.New().String(),
				MessageType:   contracts.TypeRequestReceived,
				Payload:       string(inboxPayload),
				CorrelationID: correlationID,
				ReceivedAt:    time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("create inbox record: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		event = &contracts.RequestReceived{
			CorrelationID: correlationID,
			PartnerCode:   cmd.PartnerCode,
			Type:          cmd.Type,
			Payload:       NormalizePayload(cmd.Payload),
			CreatedAt:     req.CreatedAt,
		}
		result = &ReceiveResult{
			CorrelationID: correlationID,
			Status:        req.Status,
			CreatedAt:     req.CreatedAt,
		}
		return nil
	})
	if err != nil {
		if _, ok := application.IsServiceError(err); ok {
			return nil, err
		}
		if errors.Is(err, application.ErrLockNotAcquired) {
			s.logger.Warn("could not acquire idempotency lock", "idempotency_key", cmd.IdempotencyKey)
			return nil, application.NewLockUnavailableError(err)
		}
		return nil, application.NewInternalError(err)
	}

	if event != nil {
		if err := s.bus.Publish(ctx, *event); err != nil {
			return nil, application.NewInternalError(fmt.Errorf("publish RequestReceived: %w", err))
		}
		s.logger.Info("request accepted",
			"correlation_id", result.CorrelationID,
			"partner_code", cmd.PartnerCode,
			"type", cmd.Type,
		)
	}

	return result, nil
}

// NormalizePayload embeds the payload as parsed JSON when its trimmed text is
// bracket-delimited and valid, and as a JSON string otherwise. Best-effort:
// a parse failure degrades to the original text, it never fails the request.
func NormalizePayload(payload string) json.RawMessage {
	trimmed := strings.TrimSpace(payload)
	looksStructured := (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"))

	if looksStructured && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}

	quoted, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return json.RawMessage(quoted)
}

type inboxBody struct {
	CorrelationID uuid.UUID       `json:"correlationId"`
	PartnerCode   string          `json:"partnerCode"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
}

func inboxEnvelope(correlationID uuid.UUID, cmd ReceiveCommand) ([]byte, error) {
	return json.Marshal(inboxBody{
		CorrelationID: correlationID,
		PartnerCode:   cmd.PartnerCode,
		Type:          cmd.Type,
		Payload:       NormalizePayload(cmd.Payload),
	})
}
