// cmd/service/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-trends/internal/api"
	"github-trends/internal/collector"
	"github-trends/internal/config"
	"github-trends/internal/github"
	"github-trends/internal/ratelimit"
	"github-trends/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	mode, err := parseMode(os.Args)
	if err != nil {
		return err
	}

	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully", "mode", mode)

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	ghClient, err := github.NewClient(cfg.APIBaseURL, cfg.GithubToken, logger)
	if err != nil {
		return fmt.Errorf("failed to create github client: %w", err)
	}
	limiter := ratelimit.New(cfg.MaxRate, cfg.TimePeriod)
	coll := collector.New(dbpool, ghClient, limiter, logger, cfg)

	// 6. Dispatch the selected run mode
	switch mode {
	case "init":
		return coll.InitAll(ctx, cfg.DiscoveryQueries)
	case "update":
		return coll.Update(ctx)
	case "serve":
		return serve(ctx, cfg, dbpool, logger)
	}
	return nil
}

func parseMode(args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("usage: %s <init|update|serve>", args[0])
	}
	switch args[1] {
	case "init", "update", "serve":
		return args[1], nil
	}
	return "", fmt.Errorf("unknown mode %q, expected init, update or serve", args[1])
}

func serve(ctx context.Context, cfg *config.Config, dbpool *pgxpool.Pool, logger *slog.Logger) error {
	store := storage.New(dbpool, cfg.BatchSize)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(store, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received. Exiting.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
