// Package router sends completion requests to an ordered list of provider
// adapters and returns the first success.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/phishdrill/internal/llm"
	"github.com/felixgeelhaar/phishdrill/internal/metrics"
)

// ErrNoProviders is returned by New when the adapter list is empty.
var ErrNoProviders = errors.New("router: no providers configured")

// Config holds the retry and deadline policy.
type Config struct {
	// OverallDeadline bounds a whole Route call across all providers.
	OverallDeadline time.Duration
	// AttemptTimeout bounds a single provider call.
	AttemptTimeout time.Duration
	// RetriesPerProvider is the number of extra attempts on Timeout or
	// RateLimited errors.
	RetriesPerProvider int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
}

// DefaultConfig returns the default routing policy.
func DefaultConfig() Config {
	return Config{
		OverallDeadline:    12 * time.Second,
		AttemptTimeout:     8 * time.Second,
		RetriesPerProvider: 1,
		RetryBaseDelay:     250 * time.Millisecond,
		RetryMaxDelay:      time.Second,
	}
}

// Attempt is one provider that was tried and failed.
type Attempt struct {
	Provider string        `json:"provider"`
	Kind     llm.ErrorKind `json:"error_kind"`
	Tries    int           `json:"tries"`
	Latency  time.Duration `json:"latency"`
}

// Success is the result of the first provider that answered.
type Success struct {
	Completion   *llm.Completion
	ProviderUsed string
}

// Failure lists every provider tried, in order, with its final error kind.
type Failure struct {
	Attempted []Attempt
}

func (f *Failure) Error() string {
	parts := make([]string, len(f.Attempted))
	for i, a := range f.Attempted {
		parts[i] = fmt.Sprintf("%s=%s", a.Provider, a.Kind)
	}
	return "all providers failed: " + strings.Join(parts, ", ")
}

// Result holds exactly one of Success or Failure.
type Result struct {
	Success *Success
	Failure *Failure
	// Attempted lists providers that failed before the success, if any.
	Attempted []Attempt
}

// OK reports whether a provider succeeded.
func (r Result) OK() bool {
	return r.Success != nil
}

// Router tries adapters in order. It holds no mutable state after New and
// is safe for concurrent use.
type Router struct {
	adapters []llm.Adapter
	cfg      Config
	sink     metrics.Sink
	logger   *slog.Logger
	// reserve is the time kept back for each provider not yet tried.
	reserve time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithSink attaches a metrics sink. The sink must not block.
func WithSink(s metrics.Sink) Option {
	return func(r *Router) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a router over a copy of adapters.
func New(adapters []llm.Adapter, cfg Config, opts ...Option) (*Router, error) {
	if len(adapters) == 0 {
		return nil, ErrNoProviders
	}

	def := DefaultConfig()
	if cfg.OverallDeadline <= 0 {
		cfg.OverallDeadline = def.OverallDeadline
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.RetriesPerProvider < 0 {
		cfg.RetriesPerProvider = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}

	r := &Router{
		adapters: append([]llm.Adapter(nil), adapters...),
		cfg:      cfg,
		sink:     metrics.Nop{},
		logger:   slog.Default(),
	}
	r.reserve = min(cfg.AttemptTimeout, cfg.OverallDeadline/time.Duration(len(adapters)))
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Providers returns the provider names in routing order.
func (r *Router) Providers() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Route sends req to each provider in order until one succeeds or the
// overall deadline passes. Cancelling ctx aborts in-flight calls.
func (r *Router) Route(ctx context.Context, req llm.CompletionRequest) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OverallDeadline)
	defer cancel()

	var attempted []Attempt
	for i, adapter := range r.adapters {
		if ctx.Err() != nil {
			break
		}

		completion, attempt := r.tryProvider(ctx, adapter, req, len(r.adapters)-i-1)
		if completion != nil {
			res := Result{
				Success:   &Success{Completion: completion, ProviderUsed: adapter.Name()},
				Attempted: attempted,
			}
			r.emit(ctx, req, res, time.Since(start))
			return res
		}

		attempted = append(attempted, attempt)
		r.logger.Debug("provider failed",
			"provider", attempt.Provider,
			"operation", string(req.Operation()),
			"error_kind", string(attempt.Kind),
			"tries", attempt.Tries)
	}

	res := Result{Failure: &Failure{Attempted: attempted}}
	r.emit(ctx, req, res, time.Since(start))
	return res
}

// tryProvider calls one adapter, retrying transient errors while the
// deadline still leaves room for the untried providers behind it.
func (r *Router) tryProvider(ctx context.Context, adapter llm.Adapter, req llm.CompletionRequest, untried int) (*llm.Completion, Attempt) {
	attempt := Attempt{Provider: adapter.Name()}
	var lastErr error
	start := time.Now()

	retrier := retry.New[*llm.Completion](retry.Config{
		MaxAttempts:   r.cfg.RetriesPerProvider + 1,
		InitialDelay:  r.cfg.RetryBaseDelay,
		MaxDelay:      r.cfg.RetryMaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return llm.KindOf(err).Retryable() && r.hasTimeForRetry(ctx, untried)
		},
	})

	completion, err := retrier.Do(ctx, func(ctx context.Context) (*llm.Completion, error) {
		attempt.Tries++
		c, err := adapter.Execute(ctx, req, r.attemptTimeout(ctx))
		if err != nil {
			lastErr = err
			return nil, err
		}
		return c, nil
	})
	attempt.Latency = time.Since(start)

	if err == nil && completion != nil {
		return completion, attempt
	}

	switch {
	case lastErr != nil:
		attempt.Kind = llm.KindOf(lastErr)
	case ctx.Err() != nil:
		attempt.Kind = llm.KindTimeout
	default:
		attempt.Kind = llm.KindUnavailable
	}
	return nil, attempt
}

// attemptTimeout is the smaller of AttemptTimeout and the time left.
func (r *Router) attemptTimeout(ctx context.Context) time.Duration {
	timeout := r.cfg.AttemptTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

// hasTimeForRetry requires room for the worst-case backoff plus the reserve
// of every provider still waiting its turn.
func (r *Router) hasTimeForRetry(ctx context.Context, untried int) bool {
	if ctx.Err() != nil {
		return false
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) > 2*r.cfg.RetryMaxDelay+time.Duration(untried)*r.reserve
}

func (r *Router) emit(ctx context.Context, req llm.CompletionRequest, res Result, latency time.Duration) {
	ev := metrics.Event{
		Operation:  string(req.Operation()),
		Latency:    latency,
		OccurredAt: time.Now(),
	}

	attempts := res.Attempted
	if res.OK() {
		ev.Outcome = metrics.OutcomeSuccess
		ev.ProviderUsed = res.Success.ProviderUsed
	} else {
		ev.Outcome = metrics.OutcomeFailure
		attempts = res.Failure.Attempted
	}
	for _, a := range attempts {
		ev.Attempted = append(ev.Attempted, metrics.Attempt{
			Provider:  a.Provider,
			ErrorKind: string(a.Kind),
			Tries:     a.Tries,
			Latency:   a.Latency,
		})
	}

	r.sink.Record(context.WithoutCancel(ctx), ev)
}
