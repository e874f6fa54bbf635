package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/config"
	"github.com/felixgeelhaar/phishdrill/internal/content"
	"github.com/felixgeelhaar/phishdrill/internal/daemon"
	"github.com/felixgeelhaar/phishdrill/internal/llm"
	"github.com/felixgeelhaar/phishdrill/internal/lock"
	"github.com/felixgeelhaar/phishdrill/internal/metrics"
	"github.com/felixgeelhaar/phishdrill/internal/queue"
	"github.com/felixgeelhaar/phishdrill/internal/router"
	"github.com/felixgeelhaar/phishdrill/internal/simulation"
	"github.com/felixgeelhaar/phishdrill/internal/storage/postgres"
	"github.com/felixgeelhaar/phishdrill/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

// appStore is a simulation store the CLI can also migrate and prune.
type appStore interface {
	simulation.Store
	Migrate(ctx context.Context) error
	PruneAbandoned(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

type sqliteStore struct {
	*sqlite.Store
	db *sqlite.DB
}

func (s sqliteStore) Migrate(ctx context.Context) error { return s.db.Migrate(ctx) }
func (s sqliteStore) Ping(ctx context.Context) error    { return s.db.PingContext(ctx) }
func (s sqliteStore) Close() error                      { return s.db.Close() }

type postgresStore struct {
	*postgres.Store
}

func (s postgresStore) Close() error {
	s.Store.Close()
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (appStore, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return postgresStore{Store: pg}, nil
	case "sqlite", "":
		db, err := sqlite.Open(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return sqliteStore{Store: sqlite.NewStore(db), db: db}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// loadConfig reads the config file named by --config and applies the
// logging flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viperForCmd(cmd)
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if lvl := v.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format := v.GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	return cfg, nil
}

// buildAdapters wraps each enabled provider in the resilience layer and a
// request adapter, in routing order.
func buildAdapters(cfg *config.Config, logger *slog.Logger) ([]llm.Adapter, []func() error) {
	var (
		adapters []llm.Adapter
		closers  []func() error
	)
	res := cfg.LLM.Resilience
	for _, p := range cfg.EnabledProviders() {
		var provider llm.Provider
		switch p.Kind {
		case config.KindClaude:
			provider = llm.NewClaudeProvider(llm.ClaudeConfig{
				APIKey:  p.APIKey,
				BaseURL: p.URL,
				Model:   p.Model,
			})
		case config.KindOpenAI:
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
				Name:    p.ID(),
				APIKey:  p.APIKey,
				BaseURL: p.URL,
				Model:   p.Model,
			})
		case config.KindAzure:
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
				Name:       p.ID(),
				APIKey:     p.APIKey,
				BaseURL:    p.URL,
				Model:      p.Model,
				Azure:      true,
				APIVersion: p.APIVersion,
			})
		case config.KindOllama:
			provider = llm.NewOllamaProvider(llm.OllamaConfig{
				BaseURL: p.URL,
				Model:   p.Model,
			})
		default:
			logger.Warn("skipping provider of unknown kind", "provider", p.ID(), "kind", p.Kind)
			continue
		}

		resilient := llm.NewResilientProvider(provider, llm.ResilientConfig{
			EnableCircuitBreaker: true,
			EnableBulkhead:       true,
			EnableRateLimit:      true,
			FailureThreshold:     res.FailureThreshold,
			OpenTimeout:          res.OpenTimeout,
			MaxConcurrent:        res.MaxConcurrent,
			RatePerSecond:        res.RatePerSecond,
			Logger:               logger,
		})
		closers = append(closers, resilient.Close)
		adapters = append(adapters, llm.NewAdapter(resilient, llm.AdapterOptions{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.Router.AttemptTimeout,
		}))
	}
	return adapters, closers
}

// offlineRouter stands in when no provider is configured; every request
// fails so the service serves its local fallbacks.
type offlineRouter struct{}

func (offlineRouter) Route(context.Context, llm.CompletionRequest) router.Result {
	return router.Result{Failure: &router.Failure{}}
}

// app holds everything serve and mcp share.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     appStore
	service   *simulation.Service
	collector *metrics.Collector
	providers []string
	checks    []daemon.Check

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, collector: metrics.NewCollector()}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	predefined, err := content.Load(cfg.Content.PredefinedPath)
	if err != nil {
		return nil, fmt.Errorf("load predefined content: %w", err)
	}

	a.store, err = openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)
	if err := a.store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.checks = append(a.checks, daemon.Check{Name: "database", Run: a.store.Ping})

	sinks := metrics.Multi{metrics.LogSink{Logger: logger}, a.collector}
	if cfg.AMQP.URL != "" {
		conn, err := queue.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		a.checks = append(a.checks, daemon.Check{Name: "amqp", Run: func(context.Context) error {
			if !conn.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}})
		sinks = append(sinks, queue.NewProducer(conn, logger))
	}
	events := metrics.NewAsync(sinks, 1024, logger)
	a.closers = append(a.closers, func() error {
		events.Close()
		if n := events.Dropped(); n > 0 {
			logger.Warn("router events dropped", "count", n)
		}
		return nil
	})

	var r simulation.Router = offlineRouter{}
	adapters, closers := buildAdapters(cfg, logger)
	a.closers = append(a.closers, closers...)
	if len(adapters) > 0 {
		rt, err := router.New(adapters, router.Config{
			OverallDeadline:    cfg.Router.OverallDeadline,
			AttemptTimeout:     cfg.Router.AttemptTimeout,
			RetriesPerProvider: cfg.Router.RetriesPerProvider,
			RetryBaseDelay:     cfg.Router.RetryBaseDelay,
			RetryMaxDelay:      cfg.Router.RetryMaxDelay,
		}, router.WithSink(events), router.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create router: %w", err)
		}
		r = rt
		a.providers = rt.Providers()
	} else {
		logger.Warn("no LLM provider configured, serving local fallback content only")
	}

	opts := []simulation.Option{
		simulation.WithLogger(logger),
		simulation.WithTopicHints(cfg.Content.TopicHints),
	}
	if cfg.Redis.URL != "" {
		locker, err := lock.Connect(ctx, cfg.Redis.URL,
			lock.WithTTL(cfg.Redis.LockTTL),
			lock.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, locker.Close)
		a.checks = append(a.checks, daemon.Check{Name: "redis", Run: locker.Ping})
		opts = append(opts, simulation.WithLocker(locker))
	}

	a.service, err = simulation.NewService(a.store, r, predefined, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.service.Seed(ctx); err != nil {
		return nil, err
	}
	ready = true
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
