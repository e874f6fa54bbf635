package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/phishdrill/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// acknowledger is the part of amqp.Delivery processMessage needs.
type acknowledger interface {
	Ack(multiple bool) error
	Reject(requeue bool) error
}

// Consumer drains router events from the queue into a metrics sink.
type Consumer struct {
	conn       *Connection
	sink       metrics.Sink
	workers    int
	prefetch   int
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int // Number of concurrent workers
	Prefetch int // Prefetch count per worker
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  2,
		Prefetch: 10,
	}
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	return cfg
}

// NewConsumer creates a consumer feeding sink.
func NewConsumer(conn *Connection, sink metrics.Sink, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:     conn,
		sink:     sink,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		logger:   logger,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		EventsQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("starting router event consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
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
			return

		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("message channel closed", "worker_id", id)
				return
			}
			c.processMessage(ctx, id, msg.Body, msg)
		}
	}
}

// processMessage forwards one envelope to the sink. Malformed bodies are
// rejected without requeue.
func (c *Consumer) processMessage(ctx context.Context, workerID int, body []byte, ack acknowledger) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Event.Operation == "" {
		c.logger.Error("dropping malformed router event",
			"worker_id", workerID,
			"error", err,
		)
		_ = ack.Reject(false)
		return
	}

	c.sink.Record(ctx, env.Event)

	if err := ack.Ack(false); err != nil {
		c.logger.Error("failed to ack message",
			"worker_id", workerID,
			"event_id", env.ID,
			"error", err,
		)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("consumer stopped")
}
