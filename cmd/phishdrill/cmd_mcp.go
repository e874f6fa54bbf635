package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/felixgeelhaar/phishdrill/internal/mcp"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server (stdio by default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// stdout carries the protocol
			logger, closeLog, err := setupLogging(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := mcpserver.NewServer(mcpserver.Config{Service: a.service, Version: Version})
			if addr := viperForCmd(cmd).GetString("http"); addr != "" {
				logger.Info("serving MCP over HTTP", "addr", addr)
				return srv.ServeHTTP(ctx, addr)
			}
			return srv.ServeStdio(ctx)
		},
	}
	cmd.Flags().String("http", "", "Serve MCP over HTTP on this address instead of stdio")
	return cmd
}
