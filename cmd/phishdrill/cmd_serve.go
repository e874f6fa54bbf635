package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/phishdrill/internal/daemon"
	"github.com/felixgeelhaar/phishdrill/internal/feedback"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides server.bind and server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closeLog, err := setupLogging(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr()
	if flagAddr := viperForCmd(cmd).GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	server := daemon.NewServer(daemon.ServerConfig{
		Addr:      addr,
		Service:   a.service,
		Renderer:  feedback.NewRenderer(),
		Stats:     a.collector,
		Providers: a.providers,
		Checks:    a.checks,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
