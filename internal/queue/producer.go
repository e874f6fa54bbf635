package queue

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/metrics"
	"github.com/google/uuid"
)

// publisher is the part of Connection the Producer needs.
type publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes router events. It implements metrics.Sink; wrap it in
// metrics.NewAsync so that a slow broker never delays a routed call.
type Producer struct {
	pub     publisher
	source  string
	timeout time.Duration
	logger  *slog.Logger
}

var _ metrics.Sink = (*Producer)(nil)

// NewProducer creates a producer on conn. Events are tagged with the host
// name.
func NewProducer(conn *Connection, logger *slog.Logger) *Producer {
	return newProducer(conn, logger)
}

func newProducer(pub publisher, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	source, err := os.Hostname()
	if err != nil || source == "" {
		source = "phishdrill"
	}
	return &Producer{
		pub:     pub,
		source:  source,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Record publishes ev. Failures are logged, never returned.
func (p *Producer) Record(ctx context.Context, ev metrics.Event) {
	env := Envelope{
		ID:          uuid.New(),
		Source:      p.source,
		Event:       ev,
		PublishedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pub.PublishJSON(ctx, EventsQueueName, env); err != nil {
		p.logger.Warn("failed to publish router event",
			"operation", ev.Operation,
			"outcome", string(ev.Outcome),
			"error", err,
		)
		return
	}

	p.logger.Debug("published router event",
		"event_id", env.ID,
		"operation", ev.Operation,
		"provider", ev.ProviderUsed,
	)
}
