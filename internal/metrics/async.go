package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Async decouples callers from a slow sink with a bounded buffer. Events
// are dropped when the buffer is full.
type Async struct {
	next    Sink
	events  chan Event
	dropped atomic.Int64
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsync starts a background worker that forwards events to next.
func NewAsync(next Sink, buffer int, logger *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Async{
		next:   next,
		events: make(chan Event, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues ev without blocking.
func (a *Async) Record(_ context.Context, ev Event) {
	select {
	case a.events <- ev:
	default:
		if a.dropped.Add(1)%100 == 1 {
			a.logger.Warn("metrics buffer full, dropping events", "dropped", a.dropped.Load())
		}
	}
}

// Dropped returns the number of events discarded so far.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.events {
		a.forward(ev)
	}
}

func (a *Async) forward(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("metrics sink panic", "error", r)
		}
	}()
	a.next.Record(context.Background(), ev)
}

// Close drains the buffer and stops the worker. Record must not be called
// after Close.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		close(a.events)
	})
	<-a.done
}
