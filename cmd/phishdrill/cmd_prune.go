package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func pruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete abandoned sessions older than a cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			olderThan := viperForCmd(cmd).GetDuration("older-than")
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			logger, closeLog, err := setupLogging(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			store, err := openStore(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			cutoff := time.Now().UTC().Add(-olderThan)
			n, err := store.PruneAbandoned(cmd.Context(), cutoff)
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			logger.Info("pruned abandoned sessions", "count", n, "cutoff", cutoff)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d abandoned session(s)\n", n)
			return nil
		},
	}
	cmd.Flags().Duration("older-than", 30*24*time.Hour, "Only remove sessions abandoned before now minus this duration")
	return cmd
}
