package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/config"
	"github.com/felixgeelhaar/phishdrill/internal/metrics"
	"github.com/felixgeelhaar/phishdrill/internal/simulation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMultiHandler(t *testing.T) {
	var text, jsonBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&text, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&jsonBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("component", "test")

	logger.Info("routine")
	logger.Warn("degraded", "provider", "claude")

	if !strings.Contains(text.String(), "routine") || !strings.Contains(text.String(), "degraded") {
		t.Errorf("text handler output = %q", text.String())
	}
	if strings.Contains(jsonBuf.String(), "routine") {
		t.Error("json handler should skip info records")
	}
	if !strings.Contains(jsonBuf.String(), `"component":"test"`) {
		t.Errorf("json handler missing attrs: %q", jsonBuf.String())
	}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled on both handlers")
	}
}

func TestSetupLogging_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phishdrill.log")
	var console bytes.Buffer

	logger, closeLog, err := setupLogging(config.LogConfig{Level: "info", Format: "text", File: path}, &console)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("session started", "session_id", "s1")
	if err := closeLog(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("log file should hold JSON lines: %v", err)
	}
	if line["session_id"] != "s1" {
		t.Errorf("file line = %v", line)
	}
	if !strings.Contains(console.String(), "session started") {
		t.Errorf("console = %q", console.String())
	}
}

func TestBuildAdapters(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Providers = []*config.ProviderConfig{
		{Kind: config.KindClaude, Enabled: true, APIKey: "sk-ant"},
		{Kind: config.KindOpenAI, Enabled: true},
		{Name: "azure-east", Kind: config.KindAzure, Enabled: true, APIKey: "az", URL: "https://east.openai.azure.com"},
		{Kind: config.KindOllama, Enabled: true},
		{Kind: config.KindOllama, Name: "spare", Enabled: false},
	}

	adapters, closers := buildAdapters(cfg, discardLogger())
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	var names []string
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	want := []string{"claude", "azure-east", "ollama"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("adapters = %v, want %v", names, want)
	}
	if len(closers) != len(adapters) {
		t.Errorf("closers = %d, want %d", len(closers), len(adapters))
	}
}

func TestProviderStatus(t *testing.T) {
	tests := []struct {
		p    config.ProviderConfig
		want string
	}{
		{config.ProviderConfig{Kind: config.KindClaude}, "disabled"},
		{config.ProviderConfig{Kind: config.KindClaude, Enabled: true}, "needs API key"},
		{config.ProviderConfig{Kind: config.KindClaude, Enabled: true, APIKey: "k"}, "ready"},
		{config.ProviderConfig{Kind: config.KindOllama, Enabled: true}, "ready"},
	}
	for _, tt := range tests {
		if got := providerStatus(&tt.p); got != tt.want {
			t.Errorf("providerStatus(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestSetProviderKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()

	if err := setProviderKey(cfg, "claude", "  sk-ant-1 \n"); err != nil {
		t.Fatal(err)
	}
	if err := setProviderKey(cfg, "openai", "sk-oa"); err != nil {
		t.Fatal(err)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		t.Fatal(err)
	}
	if secrets["claude"] != "sk-ant-1" || secrets["openai"] != "sk-oa" {
		t.Errorf("secrets = %v", secrets)
	}

	tests := []struct {
		name, provider, key, wantErr string
	}{
		{"unknown", "gemini", "k", "unknown provider: gemini"},
		{"ollama", "ollama", "k", "does not use an API key"},
		{"empty", "claude", "   ", "cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := setProviderKey(cfg, tt.provider, tt.key)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestPrintProviders(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Providers[0].APIKey = "k"

	var buf bytes.Buffer
	printProviders(&buf, cfg)
	out := buf.String()
	for _, want := range []string{"1. claude (claude)", "status: ready", "2. openai (openai)", "status: needs API key", "status: disabled"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFetchStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stats" {
			http.NotFound(w, r)
			return
		}
		c := metrics.NewCollector()
		c.Record(r.Context(), metrics.Event{
			Operation:    "generate_email",
			ProviderUsed: "openai",
			Attempted:    []metrics.Attempt{{Provider: "claude", ErrorKind: "timeout"}},
			Outcome:      metrics.OutcomeSuccess,
			Latency:      40 * time.Millisecond,
		})
		json.NewEncoder(w).Encode(c.Snapshot())
	}))
	defer srv.Close()

	snap, err := fetchStats(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Requests != 1 || snap.Successes != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	var buf bytes.Buffer
	printSnapshot(&buf, snap)
	for _, want := range []string{"Requests:   1", "generate_email", "claude", "timeout"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}

	if _, err := fetchStats(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("fetchStats() should fail on 404")
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	store, err := openStore(ctx, config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "p.db")}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := store.PruneAbandoned(ctx, time.Now())
	if err != nil || n != 0 {
		t.Errorf("PruneAbandoned() = %d, %v", n, err)
	}

	if _, err := openStore(ctx, config.DatabaseConfig{Driver: "mysql"}, discardLogger()); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestNewApp_Offline(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	for _, p := range cfg.LLM.Providers {
		p.APIKey = ""
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if len(a.providers) != 0 {
		t.Errorf("providers = %v, want none", a.providers)
	}
	if len(a.checks) != 1 || a.checks[0].Name != "database" {
		t.Errorf("checks = %v", a.checks)
	}

	sess, err := a.service.Begin(ctx, "learner")
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range a.service.Phase1Items() {
		if _, err := a.service.SubmitPhase1Answer(ctx, sess.ID, item.ID, true); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := a.service.StartPhase2(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	res, err := a.service.RequestNextPhase2Item(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback || res.Item.Source != simulation.SourceLocalTemplate {
		t.Errorf("item = %+v, want local template", res.Item)
	}
}

func TestNewApp_BadContentPath(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	cfg.Content.PredefinedPath = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := newApp(context.Background(), cfg, discardLogger()); err == nil {
		t.Error("newApp() should fail on a missing content file")
	}
}

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	want := map[string]bool{"serve": false, "migrate": false, "mcp": false, "providers": false, "stats": false, "prune": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing command %s", name)
		}
	}
}
