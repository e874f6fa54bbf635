package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
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

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s database is up to date\n", cfg.Database.Driver)
			return nil
		},
	}
}
