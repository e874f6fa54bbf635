package llm

import (
	"context"
	"fmt"
	"time"
)

// Adapter executes completion requests against one upstream provider.
// Every error it returns is an *AdapterError.
type Adapter interface {
	Name() string
	Execute(ctx context.Context, req CompletionRequest, timeout time.Duration) (*Completion, error)
}

// Completion is a successful adapter result.
type Completion struct {
	Provider string
	Text     string
	Payload  Payload
	Usage    Usage
	Latency  time.Duration
}

// AdapterOptions tunes the request sent to a provider.
type AdapterOptions struct {
	MaxTokens   int
	Temperature float64
	// Timeout applies when the caller passes no timeout.
	Timeout time.Duration
}

// DefaultAdapterOptions returns the options used by NewAdapter when none are set.
func DefaultAdapterOptions() AdapterOptions {
	return AdapterOptions{
		MaxTokens:   1500,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
	}
}

// ProviderAdapter turns a chat Provider into an Adapter.
type ProviderAdapter struct {
	provider Provider
	opts     AdapterOptions
}

var _ Adapter = (*ProviderAdapter)(nil)

// NewAdapter wraps a provider. Zero option fields take their defaults.
func NewAdapter(p Provider, opts AdapterOptions) *ProviderAdapter {
	def := DefaultAdapterOptions()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = def.Temperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &ProviderAdapter{provider: p, opts: opts}
}

func (a *ProviderAdapter) Name() string {
	return a.provider.Name()
}

// Execute builds the prompt for req, calls the provider within timeout and
// validates the payload.
func (a *ProviderAdapter) Execute(ctx context.Context, req CompletionRequest, timeout time.Duration) (c *Completion, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = &AdapterError{Provider: a.Name(), Kind: KindUnavailable, Err: fmt.Errorf("provider panic: %v", r)}
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, &AdapterError{Provider: a.Name(), Kind: KindMalformedResponse, Err: err}
	}
	if timeout <= 0 {
		timeout = a.opts.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	system, messages := BuildMessages(req)
	chatReq := &Request{
		System:      system,
		Messages:    messages,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	}
	if req.Operation() == OpScoreAssignment || req.Operation() == OpEvaluateExplanation {
		chatReq.Temperature = 0.2
	}

	start := time.Now()
	resp, err := a.provider.Generate(ctx, chatReq)
	latency := time.Since(start)
	if err != nil {
		return nil, classify(a.Name(), err, ctx.Err())
	}
	if resp == nil {
		return nil, &AdapterError{Provider: a.Name(), Kind: KindMalformedResponse, Err: ErrEmptyPayload}
	}

	payload, err := ParsePayload(req, resp.Content)
	if err != nil {
		return nil, &AdapterError{
			Provider: a.Name(),
			Kind:     KindMalformedResponse,
			Err:      fmt.Errorf("parse %s payload: %w", req.Operation(), err),
		}
	}

	return &Completion{
		Provider: a.Name(),
		Text:     resp.Content,
		Payload:  payload,
		Usage:    resp.Usage,
		Latency:  latency,
	}, nil
}
