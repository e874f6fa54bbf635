// Package queue streams router outcome events over RabbitMQ so that a
// separate process can aggregate provider health across instances.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/metrics"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventsQueueName is the durable queue router events are published to.
const EventsQueueName = "phishdrill.router_events"

// eventTTL drops events nobody consumed within a day.
const eventTTL = int32(24 * time.Hour / time.Millisecond)

// Envelope wraps a router event on the wire.
type Envelope struct {
	ID          uuid.UUID     `json:"id"`
	Source      string        `json:"source"`
	Event       metrics.Event `json:"event"`
	PublishedAt time.Time     `json:"published_at"`
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
	logger     *slog.Logger
}

// NewConnection dials url and declares the events queue.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:    url,
		logger: logger,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes connection and channel
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

	go c.handleReconnect(c.conn)

	c.logger.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

func (c *Connection) declareQueues() error {
	_, err := c.channel.QueueDeclare(
		EventsQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": eventTTL,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare events queue: %w", err)
	}
	return nil
}

// handleReconnect waits for conn to close and redials with exponential
// backoff.
func (c *Connection) handleReconnect(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || err == nil {
		return // normal close
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.logger.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", c.reconnects,
	)

	for i := 0; i < 10; i++ {
		c.reconnects++
		backoff := time.Duration(1<<i) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		time.Sleep(backoff)

		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return
		}

		if err := c.connect(); err != nil {
			c.logger.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ", "attempts", i+1)
		return
	}

	c.logger.Error("failed to reconnect to RabbitMQ after 10 attempts")
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

// PublishJSON publishes a JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()
	if ch == nil {
		return fmt.Errorf("no open channel")
	}

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// sanitizeURL hides the password for logging.
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
