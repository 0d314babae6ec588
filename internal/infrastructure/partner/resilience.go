package partner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/config"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/observability"
)

// ResilientClient decorates a PartnerClient with the full outbound policy:
// a semaphore bulkhead caps in-flight calls, every attempt passes through
// the circuit breaker, and retryable outcomes (transport faults, 5xx, 429)
// are re-tried with jittered exponential backoff.
type ResilientClient struct {
	inner      application.PartnerClient
	sem        *semaphore.Weighted
	breaker    *gobreaker.CircuitBreaker
	baseDelay  time.Duration
	maxRetries int
	logger     *slog.Logger
}

func NewResilientClient(
	inner application.PartnerClient,
	retryCfg config.RetryConfig,
	breakerCfg config.BreakerConfig,
	bulkheadCfg config.BulkheadConfig,
	logger *slog.Logger,
) *ResilientClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "partner",
		Timeout: breakerCfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerCfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &ResilientClient{
		inner:      inner,
		sem:        semaphore.NewWeighted(bulkheadCfg.MaxConcurrent),
		breaker:    breaker,
		baseDelay:  retryCfg.BaseDelay,
		maxRetries: retryCfg.MaxRetries,
		logger:     logger,
	}
}

var _ application.PartnerClient = (*ResilientClient)(nil)

// Send returns a well-formed response once the policy settles, including a
// non-success response with retries exhausted. Only transport faults and an
// open breaker surface as errors, which callers escalate for redelivery.
func (r *ResilientClient) Send(ctx context.Context, cmd contracts.DispatchToPartner) (*application.PartnerResponse, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("bulkhead acquire: %w", err)
	}
	defer r.sem.Release(1)

	var lastStatus *StatusError
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff(attempt - 1)):
			}
		}

		result, err := r.breaker.Execute(func() (any, error) {
			resp, err := r.inner.Send(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if !resp.Success && retryableStatus(resp.StatusCode) {
				return nil, &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
			}
			return resp, nil
		})
		if err == nil {
			resp := result.(*application.PartnerResponse)
			resp.Attempts = attempt + 1
			if resp.Success {
				observability.RecordPartnerRequest("success")
			} else {
				observability.RecordPartnerRequest("rejected")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.RecordPartnerRequest("short_circuited")
			return nil, fmt.Errorf("partner circuit open: %w", err)
		}

		lastErr = err
		lastStatus = nil
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			lastStatus = statusErr
		}
		r.logger.Warn("partner call attempt failed",
			"correlation_id", cmd.CorrelationID,
			"partner_code", cmd.PartnerCode,
			"attempt", attempt+1,
			"error", err)
	}

	if lastStatus != nil {
		observability.RecordPartnerRequest("exhausted")
		return &application.PartnerResponse{
			Success:    false,
			StatusCode: lastStatus.StatusCode,
			Body:       lastStatus.Body,
			Attempts:   r.maxRetries,
		}, nil
	}

	observability.RecordPartnerRequest("transport_fault")
	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func (r *ResilientClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int63n(int64(r.baseDelay)))
	return base + jitter
}
