package llm

import (
	"context"
	"fmt"
)

// Provider is a chat-completion backend. Providers report transport and
// HTTP failures as plain errors; NewAdapter turns them into AdapterErrors.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate performs a completion request
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents an LLM request
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	System      string // System prompt (some providers handle this separately)
	JSONOutput  bool   // ask for a JSON object where the provider supports it
}

// Message represents a chat message
type Message struct {
	Role    Role
	Content string
}

// Role represents the role of a message sender
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response represents an LLM response
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage tracks token usage
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// StatusError is returned by providers when the upstream API answers with a
// non-success HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// DecodeError is returned when the upstream body cannot be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
