// Package config loads phishdrill settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider kinds.
const (
	KindClaude = "claude"
	KindOpenAI = "openai"
	KindAzure  = "azure"
	KindOllama = "ollama"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Router   RouterConfig   `yaml:"router"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Content  ContentConfig  `yaml:"content"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns bind:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// DatabaseConfig selects the store. Driver is sqlite or postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

// LLMConfig lists providers in the order the router tries them.
type LLMConfig struct {
	Providers   []*ProviderConfig `yaml:"providers"`
	MaxTokens   int               `yaml:"max_tokens"`
	Temperature float64           `yaml:"temperature"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
}

// ProviderConfig holds settings for a single LLM provider
type ProviderConfig struct {
	Name       string `yaml:"name,omitempty"`
	Kind       string `yaml:"kind"`
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	URL        string `yaml:"url,omitempty"`
	APIVersion string `yaml:"api_version,omitempty"` // Azure only
	APIKey     string `yaml:"-"`                     // secrets.yaml or env
}

// ID is the name the router reports for this provider.
func (p *ProviderConfig) ID() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Kind
}

// ResilienceConfig tunes the per-provider circuit breaker, bulkhead and
// client-side rate limit.
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	MaxConcurrent    int           `yaml:"max_concurrent"`
	RatePerSecond    int           `yaml:"rate_per_second"`
}

// RouterConfig holds fallback router timing.
type RouterConfig struct {
	OverallDeadline    time.Duration `yaml:"overall_deadline"`
	AttemptTimeout     time.Duration `yaml:"attempt_timeout"`
	RetriesPerProvider int           `yaml:"retries_per_provider"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay"`
}

// RedisConfig enables the distributed session lock when URL is set.
type RedisConfig struct {
	URL     string        `yaml:"url"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// AMQPConfig enables the router event stream when URL is set.
type AMQPConfig struct {
	URL string `yaml:"url"`
}

// ContentConfig points at an alternative predefined content file and lists
// the topics suggested to phase-2 email generation.
type ContentConfig struct {
	PredefinedPath string   `yaml:"predefined_path"`
	TopicHints     []string `yaml:"topic_hints"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns sensible defaults for a single-node install.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:            "127.0.0.1",
			Port:            7433,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "phishdrill.db",
		},
		LLM: LLMConfig{
			Providers: []*ProviderConfig{
				{Kind: KindClaude, Enabled: true, Model: "claude-3-5-haiku-latest"},
				{Kind: KindOpenAI, Enabled: true, Model: "gpt-4o-mini"},
				{Kind: KindOllama, Enabled: false, Model: "llama3.1", URL: "http://localhost:11434"},
			},
			MaxTokens:   1500,
			Temperature: 0.7,
			Resilience: ResilienceConfig{
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
				MaxConcurrent:    8,
				RatePerSecond:    5,
			},
		},
		Router: RouterConfig{
			OverallDeadline:    12 * time.Second,
			AttemptTimeout:     8 * time.Second,
			RetriesPerProvider: 1,
			RetryBaseDelay:     250 * time.Millisecond,
			RetryMaxDelay:      time.Second,
		},
		Redis: RedisConfig{
			LockTTL: 15 * time.Second,
		},
		Content: ContentConfig{
			TopicHints: []string{
				"password reset",
				"package delivery",
				"invoice payment",
				"payroll update",
				"shared document",
				"account verification",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies secrets and environment
// overrides, and validates the result. An empty path uses config.yaml in
// Dir() when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if dir, err := Dir(); err == nil {
			candidate := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if dir, err := Dir(); err == nil {
		if err := loadSecrets(dir, cfg); err != nil {
			return nil, fmt.Errorf("load secrets: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	c.Server.Bind = getEnv("PHISHDRILL_BIND", c.Server.Bind)
	c.Server.Port = getEnvInt("PHISHDRILL_PORT", c.Server.Port)

	c.Database.Driver = getEnv("PHISHDRILL_DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("PHISHDRILL_DB_PATH", c.Database.Path)
	c.Database.URL = getEnv("PHISHDRILL_DATABASE_URL", getEnv("DATABASE_URL", c.Database.URL))

	c.Redis.URL = getEnv("PHISHDRILL_REDIS_URL", getEnv("REDIS_URL", c.Redis.URL))
	c.AMQP.URL = getEnv("PHISHDRILL_AMQP_URL", getEnv("RABBITMQ_URL", c.AMQP.URL))
	c.Content.PredefinedPath = getEnv("PHISHDRILL_CONTENT_PATH", c.Content.PredefinedPath)
	c.Content.TopicHints = getEnvList("PHISHDRILL_TOPIC_HINTS", c.Content.TopicHints)

	c.Router.OverallDeadline = getEnvDuration("PHISHDRILL_OVERALL_DEADLINE", c.Router.OverallDeadline)
	c.Router.AttemptTimeout = getEnvDuration("PHISHDRILL_ATTEMPT_TIMEOUT", c.Router.AttemptTimeout)

	c.Log.Level = getEnv("PHISHDRILL_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("PHISHDRILL_LOG_FORMAT", c.Log.Format)

	for _, p := range c.LLM.Providers {
		switch p.Kind {
		case KindClaude:
			p.APIKey = getEnv("ANTHROPIC_API_KEY", p.APIKey)
		case KindOpenAI:
			p.APIKey = getEnv("OPENAI_API_KEY", p.APIKey)
		case KindAzure:
			p.APIKey = getEnv("AZURE_OPENAI_API_KEY", p.APIKey)
			p.URL = getEnv("AZURE_OPENAI_ENDPOINT", p.URL)
		case KindOllama:
			p.URL = getEnv("OLLAMA_URL", p.URL)
		}
	}
}

// EnabledProviders returns enabled providers in order, skipping hosted
// providers without an API key.
func (c *Config) EnabledProviders() []*ProviderConfig {
	var out []*ProviderConfig
	for _, p := range c.LLM.Providers {
		if !p.Enabled {
			continue
		}
		if p.Kind != KindOllama && p.APIKey == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}

	seen := make(map[string]bool)
	for i, p := range c.LLM.Providers {
		switch p.Kind {
		case KindClaude, KindOpenAI, KindOllama:
		case KindAzure:
			if p.Enabled && p.URL == "" {
				errs = append(errs, fmt.Errorf("llm.providers[%d]: azure needs url", i))
			}
		default:
			errs = append(errs, fmt.Errorf("llm.providers[%d]: unknown kind %q", i, p.Kind))
		}
		if seen[p.ID()] {
			errs = append(errs, fmt.Errorf("llm.providers[%d]: duplicate name %q", i, p.ID()))
		}
		seen[p.ID()] = true
	}

	r := c.Router
	if r.OverallDeadline <= 0 || r.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("router deadlines must be positive"))
	} else if r.AttemptTimeout > r.OverallDeadline {
		errs = append(errs, errors.New("router.attempt_timeout exceeds router.overall_deadline"))
	}
	if r.RetriesPerProvider < 0 || r.RetriesPerProvider > 3 {
		errs = append(errs, fmt.Errorf("router.retries_per_provider %d must be 0-3", r.RetriesPerProvider))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
