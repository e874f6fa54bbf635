// Package metrics receives router outcome events. Sinks are optional and
// must never slow down or fail a routed call.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Outcome of one routed call.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Attempt records one provider tried during a routed call.
type Attempt struct {
	Provider  string        `json:"provider"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Tries     int           `json:"tries"`
	Latency   time.Duration `json:"latency"`
}

// Event describes a single routed call.
type Event struct {
	Operation    string        `json:"operation"`
	ProviderUsed string        `json:"provider_used,omitempty"`
	Attempted    []Attempt     `json:"attempted,omitempty"`
	Latency      time.Duration `json:"latency"`
	Outcome      Outcome       `json:"outcome"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// Sink accepts events. Implementations must return quickly.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Record(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Record(ctx, ev)
	}
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Record(ctx context.Context, ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"operation", ev.Operation,
		"outcome", string(ev.Outcome),
		"latency_ms", ev.Latency.Milliseconds(),
	}
	if ev.ProviderUsed != "" {
		attrs = append(attrs, "provider", ev.ProviderUsed)
	}
	for _, a := range ev.Attempted {
		if a.ErrorKind != "" {
			attrs = append(attrs, "failed_"+a.Provider, a.ErrorKind)
		}
	}

	if ev.Outcome == OutcomeFailure {
		logger.WarnContext(ctx, "completion routed", attrs...)
		return
	}
	logger.InfoContext(ctx, "completion routed", attrs...)
}

// ProviderStat aggregates outcomes for one provider.
type ProviderStat struct {
	Successes    int64            `json:"successes"`
	Failures     int64            `json:"failures"`
	ErrorsByKind map[string]int64 `json:"errors_by_kind"`
	AvgLatency   time.Duration    `json:"avg_latency"`

	latencySum time.Duration
}

// Snapshot is a point-in-time copy of the Collector state.
type Snapshot struct {
	Requests  int64                    `json:"requests"`
	Successes int64                    `json:"successes"`
	Fallbacks int64                    `json:"fallbacks"`
	Providers map[string]*ProviderStat `json:"providers"`
	ByOp      map[string]int64         `json:"by_operation"`
}

// Collector keeps in-memory counters per provider and operation.
type Collector struct {
	mu        sync.Mutex
	requests  int64
	successes int64
	providers map[string]*ProviderStat
	byOp      map[string]int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		providers: make(map[string]*ProviderStat),
		byOp:      make(map[string]int64),
	}
}

func (c *Collector) Record(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	c.byOp[ev.Operation]++
	if ev.Outcome == OutcomeSuccess {
		c.successes++
	}

	for _, a := range ev.Attempted {
		st := c.stat(a.Provider)
		st.Failures++
		st.ErrorsByKind[a.ErrorKind]++
	}
	if ev.ProviderUsed != "" {
		st := c.stat(ev.ProviderUsed)
		st.Successes++
		st.latencySum += ev.Latency
		st.AvgLatency = st.latencySum / time.Duration(st.Successes)
	}
}

func (c *Collector) stat(provider string) *ProviderStat {
	st, ok := c.providers[provider]
	if !ok {
		st = &ProviderStat{ErrorsByKind: make(map[string]int64)}
		c.providers[provider] = st
	}
	return st
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Requests:  c.requests,
		Successes: c.successes,
		Fallbacks: c.requests - c.successes,
		Providers: make(map[string]*ProviderStat, len(c.providers)),
		ByOp:      make(map[string]int64, len(c.byOp)),
	}
	for name, st := range c.providers {
		cp := *st
		cp.ErrorsByKind = make(map[string]int64, len(st.ErrorsByKind))
		for k, v := range st.ErrorsByKind {
			cp.ErrorsByKind[k] = v
		}
		snap.Providers[name] = &cp
	}
	for op, n := range c.byOp {
		snap.ByOp[op] = n
	}
	return snap
}
