package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"collab/api/internal/config"
	"collab/api/internal/store"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "collabd",
	Short: "Real-time collaboration server for shared projects",
	Long: `collabd serves the project REST API and the websocket sessions that
relay edits, cursors and presence between everyone working on a project.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(presenceCmd)
}

// loadRuntime reads configuration and builds the process logger.
func loadRuntime() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	return store.Open(ctx, cfg.DatabaseURL)
}
