package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points HOME at a temp dir and clears env overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"PHISHDRILL_BIND", "PHISHDRILL_PORT", "PHISHDRILL_DB_DRIVER", "PHISHDRILL_DB_PATH",
		"PHISHDRILL_DATABASE_URL", "DATABASE_URL", "PHISHDRILL_REDIS_URL", "REDIS_URL",
		"PHISHDRILL_AMQP_URL", "RABBITMQ_URL", "PHISHDRILL_CONTENT_PATH",
		"PHISHDRILL_OVERALL_DEADLINE", "PHISHDRILL_ATTEMPT_TIMEOUT",
		"PHISHDRILL_LOG_LEVEL", "PHISHDRILL_LOG_FORMAT",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "OLLAMA_URL",
	} {
		t.Setenv(key, "")
	}
	return home
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:7433" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Router.OverallDeadline != 12*time.Second || cfg.Router.AttemptTimeout != 8*time.Second {
		t.Errorf("router = %+v", cfg.Router)
	}
	if cfg.Router.RetriesPerProvider != 1 {
		t.Errorf("RetriesPerProvider = %d, want 1", cfg.Router.RetriesPerProvider)
	}
	if got := cfg.LLM.Providers[0].ID(); got != "claude" {
		t.Errorf("first provider = %q, want claude", got)
	}
	if len(cfg.Content.TopicHints) == 0 {
		t.Error("default topic hints should not be empty")
	}
}

func TestLoad_File(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9000
database:
  driver: postgres
  url: postgres://localhost/phishdrill
llm:
  providers:
    - kind: ollama
      enabled: true
      model: mistral
    - kind: azure
      name: azure-eu
      enabled: true
      url: https://eu.openai.azure.com
router:
  overall_deadline: 20s
  attempt_timeout: 5s
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("server = %+v; file should override port and keep bind", cfg.Server)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if len(cfg.LLM.Providers) != 2 {
		t.Fatalf("providers = %d, want the file's 2", len(cfg.LLM.Providers))
	}
	if cfg.LLM.Providers[1].ID() != "azure-eu" {
		t.Errorf("second provider = %q", cfg.LLM.Providers[1].ID())
	}
	if cfg.Router.OverallDeadline != 20*time.Second || cfg.Router.AttemptTimeout != 5*time.Second {
		t.Errorf("router = %+v", cfg.Router)
	}
	if cfg.Router.RetryBaseDelay != 250*time.Millisecond {
		t.Errorf("unset fields should keep defaults, RetryBaseDelay = %v", cfg.Router.RetryBaseDelay)
	}
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing explicit path should fail")
	}
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 0\nlog:\n  level: loud\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should reject invalid config")
	}
	for _, want := range []string{"server.port", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	isolate(t)
	t.Setenv("PHISHDRILL_PORT", "8088")
	t.Setenv("DATABASE_URL", "postgres://fallback")
	t.Setenv("PHISHDRILL_DATABASE_URL", "postgres://primary")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PHISHDRILL_OVERALL_DEADLINE", "30s")
	t.Setenv("PHISHDRILL_ATTEMPT_TIMEOUT", "not-a-duration")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OPENAI_API_KEY", "sk-oai")
	t.Setenv("PHISHDRILL_TOPIC_HINTS", "gift cards, ,tax refund")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Server.Port != 8088 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://primary" {
		t.Errorf("Database.URL = %q; PHISHDRILL_ var should win", cfg.Database.URL)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
	if cfg.Router.OverallDeadline != 30*time.Second {
		t.Errorf("OverallDeadline = %v", cfg.Router.OverallDeadline)
	}
	if cfg.Router.AttemptTimeout != 8*time.Second {
		t.Errorf("bad duration should keep default, got %v", cfg.Router.AttemptTimeout)
	}
	if cfg.LLM.Providers[0].APIKey != "sk-ant" || cfg.LLM.Providers[1].APIKey != "sk-oai" {
		t.Error("provider keys not applied from env")
	}
	if got := cfg.Content.TopicHints; len(got) != 2 || got[0] != "gift cards" || got[1] != "tax refund" {
		t.Errorf("TopicHints = %q", got)
	}
}

func TestEnabledProviders(t *testing.T) {
	cfg := Default()
	cfg.LLM.Providers[1].APIKey = "sk-oai"
	cfg.LLM.Providers[2].Enabled = true

	got := cfg.EnabledProviders()
	var names []string
	for _, p := range got {
		names = append(names, p.ID())
	}
	// claude has no key; ollama needs none
	if strings.Join(names, ",") != "openai,ollama" {
		t.Errorf("EnabledProviders() = %v", names)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }, "database.url"},
		{"unknown kind", func(c *Config) { c.LLM.Providers[0].Kind = "gemini" }, "unknown kind"},
		{"duplicate name", func(c *Config) { c.LLM.Providers[1].Name = "claude" }, "duplicate name"},
		{"azure without url", func(c *Config) {
			c.LLM.Providers = append(c.LLM.Providers, &ProviderConfig{Kind: KindAzure, Enabled: true})
		}, "azure needs url"},
		{"attempt exceeds deadline", func(c *Config) { c.Router.AttemptTimeout = time.Minute }, "attempt_timeout"},
		{"zero deadline", func(c *Config) { c.Router.OverallDeadline = 0 }, "must be positive"},
		{"too many retries", func(c *Config) { c.Router.RetriesPerProvider = 5 }, "retries_per_provider"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
