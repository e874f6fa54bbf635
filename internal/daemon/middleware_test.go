package daemon

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGetCorrelationID(t *testing.T) {
	ctx := context.WithValue(context.Background(), CorrelationIDKey, "abc-123")
	if got := GetCorrelationID(ctx); got != "abc-123" {
		t.Errorf("GetCorrelationID() = %q, want abc-123", got)
	}
	if got := GetCorrelationID(context.Background()); got != "" {
		t.Errorf("GetCorrelationID() = %q, want empty", got)
	}
	ctx = context.WithValue(context.Background(), CorrelationIDKey, 12345)
	if got := GetCorrelationID(ctx); got != "" {
		t.Errorf("GetCorrelationID() = %q, want empty for wrong type", got)
	}
}

func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var captured string
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetCorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if _, err := uuid.Parse(captured); err != nil {
		t.Errorf("generated id %q is not a uuid: %v", captured, err)
	}
	if rec.Header().Get(CorrelationIDHeader) != captured {
		t.Errorf("response header = %q, want %q", rec.Header().Get(CorrelationIDHeader), captured)
	}
}

func TestCorrelationIDMiddleware_PropagatesExistingID(t *testing.T) {
	var captured string
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(CorrelationIDHeader, "existing-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured != "existing-id" {
		t.Errorf("captured = %q, want existing-id", captured)
	}
	if rec.Header().Get(CorrelationIDHeader) != "existing-id" {
		t.Errorf("response header = %q", rec.Header().Get(CorrelationIDHeader))
	}
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok", http.StatusOK, "level=DEBUG"},
		{"created", http.StatusCreated, "level=DEBUG"},
		{"bad request", http.StatusBadRequest, "level=WARN"},
		{"conflict", http.StatusConflict, "level=WARN"},
		{"unavailable", http.StatusServiceUnavailable, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			handler := loggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("log %q missing %s", out, tt.wantLevel)
			}
			if !strings.Contains(out, "path=/v1/sessions") {
				t.Errorf("log %q missing path", out)
			}
		})
	}
}

func TestLoggingMiddleware_DefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := loggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Body.String() != "body" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "status=200") {
		t.Errorf("log %q missing status=200", buf.String())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := recoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("log %q missing panic line", buf.String())
	}
}
