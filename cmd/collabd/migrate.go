package main

import (
	"fmt"

	"collab/api/internal/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var migrateDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadRuntime()
		if err != nil {
			return err
		}
		if migrateDir != "" {
			cfg.MigrationsDir = migrateDir
		}

		ctx := cmd.Context()
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) == 0 {
			fmt.Println("Database is up to date")
			return nil
		}
		for _, version := range applied {
			color.Green("\tapplied:  %s\n", version)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "", "migrations directory (defaults to COLLAB_MIGRATIONS_DIR)")
}
