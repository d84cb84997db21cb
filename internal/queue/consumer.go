package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
)

var eventsHandled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "queue",
		Name:      "events_handled_total",
		Help:      "Learning events by type and final disposition.",
	},
	[]string{"type", "disposition"},
)

// EventHandler applies one learning event
type EventHandler func(ctx context.Context, event *LearningEvent) error

// disposition is what the consumer tells the broker about a delivery
type disposition string

const (
	dispositionAck     disposition = "ack"
	dispositionRequeue disposition = "requeue"
	dispositionReject  disposition = "reject"
)

// acknowledger is the subset of amqp.Delivery the consumer settles with
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers        int           // Number of concurrent workers
	Prefetch       int           // Unacked deliveries per channel
	HandlerTimeout time.Duration // Upper bound for one event
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:        3,
		Prefetch:       3,
		HandlerTimeout: 10 * time.Second,
	}
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	def := DefaultConsumerConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.Prefetch <= 0 {
		c.Prefetch = c.Workers
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = def.HandlerTimeout
	}
	return c
}

// Consumer consumes learning events from the queue with a worker pool
type Consumer struct {
	conn       *Connection
	handler    EventHandler
	cfg        ConsumerConfig
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler EventHandler, cfg ConsumerConfig) *Consumer {
	return &Consumer{
		conn:    conn,
		handler: handler,
		cfg:     cfg.withDefaults(),
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		EventQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting learning event consumer", "workers", c.cfg.Workers, "prefetch", c.cfg.Prefetch)

	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("worker stopping", "worker_id", id)
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}
			c.handle(ctx, id, msg.Body, msg.Redelivered, msg)
		}
	}
}

// handle decodes and applies one delivery, then settles it with the broker
func (c *Consumer) handle(ctx context.Context, workerID int, body []byte, redelivered bool, ack acknowledger) disposition {
	start := time.Now()

	var event LearningEvent
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Error("failed to unmarshal learning event", "worker_id", workerID, "error", err)
		settle(ack, dispositionReject)
		eventsHandled.WithLabelValues("malformed", string(dispositionReject)).Inc()
		return dispositionReject
	}

	var err error
	if err = event.Validate(); err == nil {
		hctx, cancel := context.WithTimeout(ctx, c.cfg.HandlerTimeout)
		err = c.handler(hctx, &event)
		cancel()
	}

	d := dispositionFor(err, redelivered)
	logArgs := []any{
		"worker_id", workerID,
		"event_id", event.ID,
		"type", event.Type,
		"disposition", d,
		"duration", time.Since(start),
	}
	if err != nil {
		slog.Warn("learning event failed", append(logArgs, "error", err)...)
	} else {
		slog.Debug("learning event applied", logArgs...)
	}

	settle(ack, d)
	eventsHandled.WithLabelValues(string(event.Type), string(d)).Inc()
	return d
}

// dispositionFor decides how a handler result is settled. Input errors never
// get better on redelivery. Anything else is retried once through the broker.
func dispositionFor(err error, redelivered bool) disposition {
	switch {
	case err == nil:
		return dispositionAck
	case errors.Is(err, domain.ErrDuplicate):
		// The event id was already recorded by an earlier delivery.
		return dispositionAck
	case isPermanent(err):
		return dispositionReject
	case redelivered:
		return dispositionReject
	default:
		return dispositionRequeue
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidIdentity) ||
		errors.Is(err, domain.ErrUnknownDifficulty) ||
		errors.Is(err, domain.ErrNegativeXP) ||
		errors.Is(err, ErrUnknownEventType)
}

func settle(ack acknowledger, d disposition) {
	var err error
	switch d {
	case dispositionAck:
		err = ack.Ack(false)
	case dispositionRequeue:
		err = ack.Nack(false, true)
	default:
		err = ack.Reject(false)
	}
	if err != nil {
		slog.Error("failed to settle delivery", "disposition", d, "error", err)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
