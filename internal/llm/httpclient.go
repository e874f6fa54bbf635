package llm

import (
	"net"
	"net/http"
	"time"
)

// newLLMHTTPClient creates an HTTP client for provider calls. There is no
// client-level timeout: every call carries a context deadline from the router.
func newLLMHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		MaxConnsPerHost:       10,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
	}
}
