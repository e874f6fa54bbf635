package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
)

// ErrClientRateLimited is returned when the local rate limiter rejects a call
// before it reaches the provider.
var ErrClientRateLimited = errors.New("client-side rate limit exceeded")

// ResilientProvider wraps an LLM provider with resilience patterns from fortify.
// It never retries; the router owns retry policy.
type ResilientProvider struct {
	provider       Provider
	circuitBreaker circuitbreaker.CircuitBreaker[*Response]
	bulkhead       bulkhead.Bulkhead[*Response]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
	name           string
}

var _ Provider = (*ResilientProvider)(nil)

// ResilientConfig holds configuration for resilient provider wrapper
type ResilientConfig struct {
	// EnableCircuitBreaker enables circuit breaker pattern
	EnableCircuitBreaker bool

	// EnableBulkhead enables concurrency limiting
	EnableBulkhead bool

	// EnableRateLimit enables rate limiting
	EnableRateLimit bool

	// FailureThreshold is the number of consecutive failures that opens the
	// circuit (default: 5)
	FailureThreshold int

	// OpenTimeout is how long the circuit stays open (default: 30s)
	OpenTimeout time.Duration

	// MaxConcurrent for bulkhead (default: 8)
	MaxConcurrent int

	// RatePerSecond for rate limiting (default: 5)
	RatePerSecond int

	// Logger for resilience events
	Logger *slog.Logger
}

// DefaultResilientConfig returns sensible defaults for provider resilience
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableBulkhead:       true,
		EnableRateLimit:      true,
		FailureThreshold:     5,
		OpenTimeout:          30 * time.Second,
		MaxConcurrent:        8,
		RatePerSecond:        5,
	}
}

// NewResilientProvider wraps a provider with resilience patterns using fortify
func NewResilientProvider(provider Provider, cfg ResilientConfig) *ResilientProvider {
	rp := &ResilientProvider{
		provider: provider,
		logger:   cfg.Logger,
		name:     provider.Name(),
	}
	if rp.logger == nil {
		rp.logger = slog.Default()
	}

	if cfg.EnableCircuitBreaker {
		threshold := cfg.FailureThreshold
		if threshold <= 0 {
			threshold = 5
		}
		openTimeout := cfg.OpenTimeout
		if openTimeout <= 0 {
			openTimeout = 30 * time.Second
		}
		rp.circuitBreaker = circuitbreaker.New[*Response](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return int(counts.ConsecutiveFailures) >= threshold
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				rp.logger.Warn("circuit breaker state change",
					"provider", provider.Name(),
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 8
		}
		rp.bulkhead = bulkhead.New[*Response](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 2,
			QueueTimeout:  5 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 5
		}
		rp.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 2,
			Interval: time.Second,
		})
	}

	return rp
}

func (p *ResilientProvider) Name() string {
	return p.provider.Name()
}

// Generate applies rate limiting, then the circuit breaker around the
// bulkhead-guarded call. A rate-limit rejection is reported as RateLimited.
func (p *ResilientProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if p.rateLimit != nil {
		if !p.rateLimit.Allow(ctx, p.name) {
			return nil, &AdapterError{Provider: p.name, Kind: KindRateLimited, Err: ErrClientRateLimited}
		}
	}

	operation := func(ctx context.Context) (*Response, error) {
		return p.provider.Generate(ctx, req)
	}

	if p.bulkhead != nil {
		inner := operation
		operation = func(ctx context.Context) (*Response, error) {
			return p.bulkhead.Execute(ctx, inner)
		}
	}

	if p.circuitBreaker != nil {
		return p.circuitBreaker.Execute(ctx, operation)
	}

	return operation(ctx)
}

// Close releases resources held by the resilient provider
func (p *ResilientProvider) Close() error {
	if p.rateLimit != nil {
		return p.rateLimit.Close()
	}
	return nil
}
