// Package queue carries learning events from other services into the ledger
// over RabbitMQ and publishes award notices back out.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names
const (
	EventQueueName = "progression.events"
	AwardQueueName = "progression.awards"
)

// queueSpec describes one durable queue the connection declares.
type queueSpec struct {
	name string
	ttl  time.Duration
}

var topology = []queueSpec{
	// Events are the source of truth for awards, so they live until consumed.
	{name: EventQueueName},
	// Award notices feed notification collaborators and go stale quickly.
	{name: AwardQueueName, ttl: 5 * time.Minute},
}

const reconnectAttempts = 10

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection dials RabbitMQ and declares the progression queues
func NewConnection(url string) (*Connection, error) {
	c := &Connection{url: url}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.declareQueues(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	go c.handleReconnect()

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url), "queues", len(topology))
	return nil
}

func (c *Connection) declareQueues() error {
	for _, q := range topology {
		var args amqp.Table
		if q.ttl > 0 {
			args = amqp.Table{"x-message-ttl": int32(q.ttl / time.Millisecond)}
		}
		_, err := c.channel.QueueDeclare(
			q.name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			args,
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// handleReconnect waits for an unexpected close and redials with
// exponential backoff until the broker is back or the attempts run out.
func (c *Connection) handleReconnect() {
	c.mu.RLock()
	notifyClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	c.mu.RUnlock()

	amqpErr, ok := <-notifyClose
	if !ok || amqpErr == nil || c.isClosed() {
		return
	}
	slog.Warn("RabbitMQ connection lost", "error", amqpErr)

	redial := retry.New[struct{}](retry.Config{
		MaxAttempts:   reconnectAttempts,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		IsRetryable:   func(error) bool { return !c.isClosed() },
	})
	_, err := redial.Do(context.Background(), func(context.Context) (struct{}, error) {
		c.mu.Lock()
		c.reconnects++
		n := c.reconnects
		c.mu.Unlock()
		if err := c.connect(); err != nil {
			slog.Error("RabbitMQ redial failed", "error", err, "reconnects", n)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		slog.Error("giving up on RabbitMQ", "attempts", reconnectAttempts, "error", err)
	}
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Channel returns the current channel (thread-safe)
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a persistent JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue, messageID string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return c.Channel().PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

// sanitizeURL hides credentials before a broker URL is logged
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if len(raw) > 20 {
			return raw[:20] + "..."
		}
		return raw
	}
	return u.Redacted()
}
