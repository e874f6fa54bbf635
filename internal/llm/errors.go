package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies every adapter failure.
type ErrorKind string

const (
	KindRateLimited       ErrorKind = "rate_limited"
	KindAuthFailed        ErrorKind = "auth_failed"
	KindTimeout           ErrorKind = "timeout"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindUnavailable       ErrorKind = "unavailable"
)

// Retryable reports whether the same provider may be tried again.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindRateLimited
}

// AdapterError is the only error type an Adapter returns.
type AdapterError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err, or KindUnavailable when err is
// not an AdapterError.
func KindOf(err error) ErrorKind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnavailable
}

// classify maps a provider error to an AdapterError. ctxErr is the error of
// the per-attempt context and wins over whatever the transport reported.
func classify(provider string, err error, ctxErr error) *AdapterError {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae
	}

	kind := KindUnavailable
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(ctxErr, context.Canceled), errors.Is(err, context.Canceled):
		kind = KindTimeout
	default:
		var se *StatusError
		var de *DecodeError
		var ne net.Error
		switch {
		case errors.As(err, &se):
			kind = kindForStatus(se.StatusCode)
		case errors.As(err, &de):
			kind = KindMalformedResponse
		case errors.As(err, &ne) && ne.Timeout():
			kind = KindTimeout
		}
	}

	return &AdapterError{Provider: provider, Kind: kind, Err: err}
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuthFailed
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindUnavailable
	default:
		// 400/404/422: the request or model does not match the provider.
		return KindMalformedResponse
	}
}
