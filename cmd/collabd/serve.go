package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"collab/api/internal/app"
	"collab/api/internal/search"
	"collab/api/internal/session"
	"collab/api/internal/store"

	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveMigrate   bool
	serveReindex   bool
	shutdownWindow = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		if serveMigrate {
			applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
			if err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			logger.Info("migrations applied", "count", len(applied))
		}

		dataStore := store.NewPostgresStore(db)
		pgfts := search.NewPgFTS(db)
		var meiliClient *search.Meili
		if strings.TrimSpace(cfg.MeiliURL) != "" {
			meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
			defer meiliClient.Close()
		}
		searchService := search.NewService(meiliClient, pgfts, logger)
		if serveReindex {
			go searchService.ReindexAllFromPG(context.WithoutCancel(ctx))
		}

		var sessions app.SessionStore
		if strings.TrimSpace(cfg.RedisURL) != "" {
			redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("redis connection failed: %w", err)
			}
			defer redisStore.Close()
			sessions = redisStore
			logger.Info("refresh sessions stored in redis")
		} else {
			logger.Info("refresh sessions stored in postgres")
		}

		service := app.New(cfg, dataStore, sessions, searchService, logger)
		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("collab server listening", "addr", cfg.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		// Hijacked websocket connections are not tracked by http.Server.
		service.Shutdown()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to API_ADDR)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply pending migrations before serving")
	serveCmd.Flags().BoolVar(&serveReindex, "reindex", false, "rebuild the edit history search index on startup")
}
