//go:build integration

package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/metrics"
	"github.com/felixgeelhaar/phishdrill/internal/queue"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get AMQP URL: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return amqpURL, cleanup
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL, nil)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}

	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("failed to close connection: %v", err)
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	_, err := queue.NewConnection("amqp://invalid:5672", nil)
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Producer_Record(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL, nil)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	producer := queue.NewProducer(conn, nil)
	producer.Record(context.Background(), metrics.Event{
		Operation:    "evaluate_explanation",
		ProviderUsed: "claude",
		Outcome:      metrics.OutcomeSuccess,
		OccurredAt:   time.Now(),
	})

	q, err := conn.Channel().QueueInspect(queue.EventsQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}
	if q.Messages != 1 {
		t.Errorf("expected 1 message in queue, got %d", q.Messages)
	}
}

func TestIntegration_ProducerToConsumer(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL, nil)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collector := metrics.NewCollector()
	consumer := queue.NewConsumer(conn, collector, queue.ConsumerConfig{Workers: 2}, nil)
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn, nil)
	for i := 0; i < 3; i++ {
		producer.Record(ctx, metrics.Event{
			Operation:    "generate_email",
			ProviderUsed: "openai",
			Attempted:    []metrics.Attempt{{Provider: "claude", ErrorKind: "timeout", Tries: 2}},
			Outcome:      metrics.OutcomeSuccess,
			OccurredAt:   time.Now(),
		})
	}

	deadline := time.After(10 * time.Second)
	for {
		snap := collector.Snapshot()
		if snap.Requests == 3 {
			if got := snap.Providers["claude"].ErrorsByKind["timeout"]; got != 3 {
				t.Errorf("claude timeouts = %d, want 3", got)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d", snap.Requests)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
