// Package worker holds the background loops that run alongside the
// consumers. The outbox dispatcher is the at-least-once safety net behind
// the eager publish path.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/contracts"
	"github.com/relaypoint/partner-hub/internal/observability"
)

type OutboxDispatcher struct {
	outbox    application.OutboxRepository
	bus       application.Bus
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewOutboxDispatcher(
	outbox application.OutboxRepository,
	bus application.Bus,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *OutboxDispatcher {
	return &OutboxDispatcher{
		outbox:    outbox,
		bus:       bus,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

func (w *OutboxDispatcher) Start(ctx context.Context) {
	w.logger.Info("outbox dispatcher started", "interval", w.interval, "batch_size", w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox dispatcher stopping")
			return
		case <-ticker.C:
			if err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessBatch publishes one batch of staged records in creation order.
// A record that fails to publish stays unpublished for the next cycle and
// never blocks the rest of the batch. Records with an unrecognized type are
// marked published anyway so one poison record cannot starve the table.
func (w *OutboxDispatcher) ProcessBatch(ctx context.Context) error {
	records, err := w.outbox.FindUnpublished(ctx, w.batchSize)
	if err != nil {
		return err
	}

	for _, rec := range records {
		msg, err := contracts.Decode(rec.MessageType, rec.Payload)
		if err != nil {
			if errors.Is(err, contracts.ErrUnknownType) {
				w.logger.Warn("skipping outbox record with unknown type",
					"outbox_id", rec.ID, "type", rec.MessageType)
				observability.RecordOutboxSkipped()
				if err := w.outbox.MarkPublished(ctx, rec.ID, w.now().UTC()); err != nil {
					w.logger.Error("failed to mark skipped record", "outbox_id", rec.ID, "error", err)
				}
				continue
			}
			w.logger.Error("failed to decode outbox record",
				"outbox_id", rec.ID, "type", rec.MessageType, "error", err)
			continue
		}

		if err := w.bus.Publish(ctx, contracts.Deref(msg)); err != nil {
			w.logger.Warn("failed to publish outbox record, will retry",
				"outbox_id", rec.ID, "type", rec.MessageType, "error", err)
			continue
		}

		observability.RecordOutboxPublished()
		if err := w.outbox.MarkPublished(ctx, rec.ID, w.now().UTC()); err != nil {
			w.logger.Error("failed to mark outbox record published",
				"outbox_id", rec.ID, "error", err)
		}
	}
	return nil
}
