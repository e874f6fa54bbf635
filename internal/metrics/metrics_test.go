package metrics

import (
	"context"
	"sync"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (b *blockingSink) Record(_ context.Context, ev Event) {
	<-b.release
	b.mu.Lock()
	b.got = append(b.got, ev)
	b.mu.Unlock()
}

func TestAsync_RecordDoesNotBlock(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	a := NewAsync(sink, 2, nil)

	start := time.Now()
	for i := 0; i < 50; i++ {
		a.Record(context.Background(), Event{Operation: "generate_email"})
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Record() blocked for %v", elapsed)
	}
	if a.Dropped() == 0 {
		t.Error("expected dropped events when the buffer is full")
	}

	close(sink.release)
	a.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if int64(len(sink.got))+a.Dropped() != 50 {
		t.Errorf("delivered %d + dropped %d, want 50", len(sink.got), a.Dropped())
	}
}

func TestCollector_Record(t *testing.T) {
	c := NewCollector()

	c.Record(context.Background(), Event{
		Operation:    "generate_email",
		ProviderUsed: "openai",
		Attempted:    []Attempt{{Provider: "claude", ErrorKind: "timeout", Tries: 2}},
		Latency:      200 * time.Millisecond,
		Outcome:      OutcomeSuccess,
	})
	c.Record(context.Background(), Event{
		Operation: "evaluate_explanation",
		Attempted: []Attempt{
			{Provider: "claude", ErrorKind: "auth_failed", Tries: 1},
			{Provider: "openai", ErrorKind: "unavailable", Tries: 1},
		},
		Outcome: OutcomeFailure,
	})

	snap := c.Snapshot()
	if snap.Requests != 2 {
		t.Errorf("Requests = %d, want 2", snap.Requests)
	}
	if snap.Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", snap.Fallbacks)
	}
	if got := snap.Providers["claude"].Failures; got != 2 {
		t.Errorf("claude Failures = %d, want 2", got)
	}
	if got := snap.Providers["openai"].Successes; got != 1 {
		t.Errorf("openai Successes = %d, want 1", got)
	}
	if got := snap.Providers["claude"].ErrorsByKind["timeout"]; got != 1 {
		t.Errorf("claude timeout errors = %d, want 1", got)
	}
	if got := snap.ByOp["evaluate_explanation"]; got != 1 {
		t.Errorf("ByOp[evaluate_explanation] = %d, want 1", got)
	}

	// Snapshot is a copy.
	snap.Providers["claude"].ErrorsByKind["timeout"] = 99
	if c.Snapshot().Providers["claude"].ErrorsByKind["timeout"] != 1 {
		t.Error("Snapshot should not share maps with the collector")
	}
}

func TestMulti_Record(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	Multi{a, b, Nop{}, LogSink{}}.Record(context.Background(), Event{Operation: "x", Outcome: OutcomeSuccess})

	if a.Snapshot().Requests != 1 || b.Snapshot().Requests != 1 {
		t.Error("Multi should forward to every sink")
	}
}
