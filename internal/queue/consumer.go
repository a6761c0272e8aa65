package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/repository"
)

// AuditStore persists audit entries.
type AuditStore interface {
	Insert(ctx context.Context, e model.AuditEntry) error
}

// StartAuditConsumer connects to RabbitMQ, declares the audit queue
// (durable) and writes every event to store.  It runs a reconnect loop and
// returns only when ctx is cancelled.  Messages that cannot be decoded, or
// that the store refuses outright, are rejected without requeue; messages
// that fail because the store is unreachable go back on the queue.
func StartAuditConsumer(ctx context.Context, url, queueName string, store AuditStore, log *zap.Logger) error {
	if queueName == "" {
		queueName = AuditQueueName
	}
	log = log.With(zap.String("component", "audit-consumer"), zap.String("queue", queueName))

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, queueName, store, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, store AuditStore, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(ctx, d.Body, store); err != nil {
				retry := shouldRequeue(err)
				log.Error("handle message failed", zap.Error(err), zap.Bool("requeue", retry))
				if !retry {
					_ = d.Nack(false, false)
					continue
				}
				// hold off so a store outage does not turn into a redelivery storm
				ok := sleep(ctx, time.Second)
				_ = d.Nack(false, true)
				if !ok {
					return ctx.Err()
				}
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// errMalformed marks payloads that will never decode, however often they
// are redelivered.
var errMalformed = errors.New("malformed audit event")

// shouldRequeue is true only for store failures that may clear on their own.
func shouldRequeue(err error) bool {
	return !errors.Is(err, errMalformed) && repository.IsUnavailable(err)
}

func handleMessage(ctx context.Context, body []byte, store AuditStore) error {
	var ev AuditEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errMalformed, err)
	}
	if ev.ID == "" || ev.Action == "" {
		return fmt.Errorf("%w: missing id or action", errMalformed)
	}
	e, err := ev.Entry()
	if err != nil {
		return fmt.Errorf("%w: occurred_at: %v", errMalformed, err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Insert(ctx, e); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
