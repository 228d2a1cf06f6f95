package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomchat/internal/Tasks"
	"roomchat/internal/chat"
	"roomchat/internal/config"
	"roomchat/internal/db"
	"roomchat/internal/logger"
	"roomchat/internal/repository"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger.SetupFromEnv("info", os.Stderr)
	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger.Setup(cfg.LogLevel, os.Stderr)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	h := chat.NewHub(repo, cfg.UploadDir, cfg.Retention)
	go h.Run()

	cleaner := tasks.NewMessageCleaner(repo, cfg.UploadDir, cfg.Retention)
	c, err := cleaner.Start(cfg.CleanupSchedule)
	if err != nil {
		return fmt.Errorf("cleanup schedule: %w", err)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           chat.NewMux(h, chat.NewUpgrader(cfg.AllowedOrigins)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Msgf("🚀 Chat server starting on %s...", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received. Cleaning up...")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
	}

	<-c.Stop().Done()
	h.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("Graceful shutdown complete. Goodnight!")
	return nil
}

func openStore(ctx context.Context, cfg *config.ServerConfig) (repository.MessageRepo, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := repository.NewPostgresMessagesRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		return repo, pool.Close, nil
	default:
		sqlDB, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewSQLiteMessagesRepo(sqlDB)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("sqlite schema: %w", err)
		}
		return repo, func() { _ = sqlDB.Close() }, nil
	}
}
