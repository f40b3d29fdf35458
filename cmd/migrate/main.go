package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/archon-research/event-store/db/migrator"
	"github.com/archon-research/event-store/internal/adapters/outbound/postgres"
	"github.com/archon-research/event-store/internal/pkg/env"
)

func main() {
	dir := flag.String("dir", "./db/migrations", "Directory containing *.sql migrations")
	list := flag.Bool("list", false, "List applied migrations after applying")
	flag.Parse()

	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))

	port, err := env.GetInt("STORAGE_PORT", 5432)
	if err != nil {
		logger.Error("invalid storage config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := postgres.OpenPool(ctx, postgres.Config{
		User:     env.Get("STORAGE_USER", ""),
		Host:     env.Get("STORAGE_HOST", ""),
		Database: env.Get("STORAGE_DATABASE", ""),
		Password: env.Get("STORAGE_PASSWORD", ""),
		Port:     port,
	}, postgres.PoolConfig{MaxConns: 1})
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	m := migrator.New(pool, *dir, logger)
	if err := m.ApplyAll(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		pool.Close()
		os.Exit(1)
	}

	if *list {
		applied, err := m.ListApplied(ctx)
		if err != nil {
			logger.Error("failed to list migrations", "error", err)
			pool.Close()
			os.Exit(1)
		}
		for _, name := range applied {
			logger.Info("applied", "migration", name)
		}
	}

	logger.Info("all migrations up to date")
}
