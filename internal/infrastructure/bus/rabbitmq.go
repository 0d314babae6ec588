// Package bus implements the at-least-once event transport on RabbitMQ.
// Messages travel JSON-encoded on a durable topic exchange with the contract
// type name as routing key. Consumers ack manually: a handler error rejects
// the message into a per-queue retry queue, which feeds it back after a
// delay; once the redelivery cap is reached the message is parked on the
// dead-letter queue instead.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/config"
	"github.com/relaypoint/partner-hub/internal/contracts"
)

type RabbitBus struct {
	conn            *amqp.Connection
	pubCh           *amqp.Channel
	exchange        string
	queue           string
	prefetch        int
	retryDelay      time.Duration
	maxRedeliveries int
	logger          *slog.Logger

	mu       sync.Mutex
	handlers map[string][]func(ctx context.Context, msg any) error
}

var _ application.Bus = (*RabbitBus)(nil)

// NewRabbitBus connects to the broker and declares the shared exchange.
// The queue name identifies this consumer group; each process uses its own
// durable queue so every subscriber sees the events it bound.
func NewRabbitBus(cfg config.BrokerConfig, queue string, logger *slog.Logger) (*RabbitBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	if err := pubCh.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	return &RabbitBus{
		conn:            conn,
		pubCh:           pubCh,
		exchange:        cfg.Exchange,
		queue:           queue,
		prefetch:        cfg.Prefetch,
		retryDelay:      cfg.RetryDelay,
		maxRedeliveries: cfg.MaxRedeliveries,
		logger:          logger,
		handlers:        make(map[string][]func(ctx context.Context, msg any) error),
	}, nil
}

func (b *RabbitBus) Publish(ctx context.Context, msg any) error {
	typeName := contracts.TypeNameOf(msg)
	if typeName == "" {
		return fmt.Errorf("%w: %T", contracts.ErrUnknownType, msg)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", typeName, err)
	}

	// Publishing is serialized; amqp channels are not safe for concurrent use.
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pubCh.PublishWithContext(ctx, b.exchange, typeName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         typeName,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (b *RabbitBus) Subscribe(typeName string, handler func(ctx context.Context, msg any) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typeName] = append(b.handlers[typeName], handler)
}

// Start declares this consumer's queue topology, binds every subscribed type
// name and consumes until ctx is cancelled. Call after all Subscribe
// registrations.
//
// Three queues back each consumer group: the work queue, a retry queue the
// work queue dead-letters rejected messages into (its per-message TTL feeds
// them back after the retry delay) and a dead-letter queue on a shared DLX
// exchange where messages land once the redelivery cap is exhausted.
func (b *RabbitBus) Start(ctx context.Context) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consume channel: %w", err)
	}

	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	if err := b.declareTopology(ch); err != nil {
		return err
	}

	b.mu.Lock()
	bindings := make([]string, 0, len(b.handlers))
	for typeName := range b.handlers {
		bindings = append(bindings, typeName)
	}
	b.mu.Unlock()

	for _, typeName := range bindings {
		if err := ch.QueueBind(b.queue, typeName, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", typeName, err)
		}
	}

	deliveries, err := ch.Consume(b.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consumer on %s: %w", b.queue, err)
	}

	b.logger.Info("bus consumer started", "queue", b.queue, "bindings", bindings)

	for {
		select {
		case <-ctx.Done():
			ch.Close()
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			b.dispatch(ctx, d)
		}
	}
}

func (b *RabbitBus) declareTopology(ch *amqp.Channel) error {
	dlx := b.exchange + ".dlx"
	retryQueue := b.queue + ".retry"
	deadQueue := b.queue + ".dlq"

	if err := ch.ExchangeDeclare(dlx, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange %s: %w", dlx, err)
	}
	if _, err := ch.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue %s: %w", deadQueue, err)
	}
	if err := ch.QueueBind(deadQueue, "#", dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue %s: %w", deadQueue, err)
	}

	// Expired retry messages return to the work queue through the default
	// exchange, which routes by queue name.
	if _, err := ch.QueueDeclare(retryQueue, true, false, false, false, amqp.Table{
		"x-message-ttl":             b.retryDelay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": b.queue,
	}); err != nil {
		return fmt.Errorf("failed to declare retry queue %s: %w", retryQueue, err)
	}

	if _, err := ch.QueueDeclare(b.queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": retryQueue,
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
	}
	return nil
}

func (b *RabbitBus) dispatch(ctx context.Context, d amqp.Delivery) {
	typeName := d.Type
	if typeName == "" {
		typeName = d.RoutingKey
	}

	msg, err := contracts.Decode(typeName, d.Body)
	if err != nil {
		// Requeueing a malformed body would loop forever; drop it loudly.
		b.logger.Error("dropping undecodable message", "type", typeName, "error", err)
		_ = d.Ack(false)
		return
	}

	b.mu.Lock()
	handlers := b.handlers[typeName]
	b.mu.Unlock()

	count := redeliveryCount(d)
	hctx := application.WithRedeliveryCount(ctx, count)

	for _, h := range handlers {
		if err := h(hctx, contracts.Deref(msg)); err != nil {
			if count >= b.maxRedeliveries {
				b.logger.Error("handler failed after max redeliveries, parking message",
					"type", typeName, "redeliveries", count, "error", err)
				b.park(ctx, d)
				return
			}
			b.logger.Warn("handler failed, scheduling redelivery",
				"type", typeName, "redeliveries", count, "error", err)
			// Rejecting without requeue dead-letters into the retry queue.
			_ = d.Nack(false, false)
			return
		}
	}
	_ = d.Ack(false)
}

// park moves an exhausted message onto the dead-letter exchange and acks the
// original. If the publish fails the message is rejected into the retry queue
// instead, so it is never lost.
func (b *RabbitBus) park(ctx context.Context, d amqp.Delivery) {
	b.mu.Lock()
	err := b.pubCh.PublishWithContext(ctx, b.exchange+".dlx", d.RoutingKey, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Type:         d.Type,
		Timestamp:    d.Timestamp,
		Headers:      d.Headers,
		Body:         d.Body,
	})
	b.mu.Unlock()
	if err != nil {
		b.logger.Error("failed to park message, rejecting for retry",
			"type", d.Type, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// redeliveryCount reads how many times this consumer's queue already rejected
// the message. Each reject/expire cycle increments the count the broker
// records in the x-death header.
func redeliveryCount(d amqp.Delivery) int {
	deaths, ok := d.Headers["x-death"].([]any)
	if !ok {
		if d.Redelivered {
			return 1
		}
		return 0
	}
	for _, entry := range deaths {
		death, ok := entry.(amqp.Table)
		if !ok {
			continue
		}
		if death["reason"] != "rejected" {
			continue
		}
		if count, ok := death["count"].(int64); ok {
			return int(count)
		}
	}
	return 0
}

func (b *RabbitBus) Close() error {
	if err := b.pubCh.Close(); err != nil {
		b.logger.Warn("failed to close publish channel", "error", err)
	}
	return b.conn.Close()
}
