// Package main provides the read-only event query API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/archon-research/event-store/internal/adapters/inbound/http"
	"github.com/archon-research/event-store/internal/adapters/outbound/memory"
	"github.com/archon-research/event-store/internal/adapters/outbound/postgres"
	rediscache "github.com/archon-research/event-store/internal/adapters/outbound/redis"
	"github.com/archon-research/event-store/internal/adapters/outbound/telemetry"
	"github.com/archon-research/event-store/internal/pkg/env"
	"github.com/archon-research/event-store/internal/ports/outbound"
	eventstorage "github.com/archon-research/event-store/internal/services/event_storage"
)

// Build-time variables
var (
	GitCommit string
	GitBranch string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("event api failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("event-api\n")
		fmt.Printf("  Commit:     %s\n", GitCommit)
		fmt.Printf("  Branch:     %s\n", GitBranch)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		return nil
	}

	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	logger.Info("starting event-api",
		"commit", GitCommit,
		"branch", GitBranch,
		"buildTime", BuildTime,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetryConfig("event-api"))
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	defer shutdownWithTimeout(logger, "tracer", shutdownTracer)

	storage, closeStorage, err := openStorage(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	if redisAddr := env.Get("REDIS_ADDR", ""); redisAddr != "" {
		cacheCfg := rediscache.ConfigDefaults()
		cacheCfg.Addr = redisAddr
		cacheCfg.Password = env.Get("REDIS_PASSWORD", "")
		if cacheCfg.TTL, err = env.GetDuration("REDIS_TTL", cacheCfg.TTL); err != nil {
			return err
		}
		cached, err := rediscache.NewCachedEventStorage(storage, cacheCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create Redis cache: %w", err)
		}
		defer cached.Close()
		if err := cached.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("Redis query cache enabled", "addr", redisAddr, "ttl", cacheCfg.TTL)
		storage = cached
	}

	service, err := eventstorage.NewService(storage, logger)
	if err != nil {
		return fmt.Errorf("failed to create event storage service: %w", err)
	}

	mux := http.NewServeMux()
	httpadapter.NewHandler(service, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:         env.Get("HTTP_ADDR", ":8080"),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	logger.Info("event api stopped")
	return nil
}

// openStorage returns the backend selected by STORAGE_BACKEND and a func
// that releases it.
func openStorage(ctx context.Context, logger *slog.Logger) (outbound.EventStorage, func(), error) {
	switch backend := env.Get("STORAGE_BACKEND", "postgres"); backend {
	case "memory":
		logger.Warn("using in-memory event storage, nothing is persisted")
		return memory.NewEventStorage(logger), func() {}, nil
	case "postgres":
		port, err := env.GetInt("STORAGE_PORT", 5432)
		if err != nil {
			return nil, nil, err
		}
		poolCfg := postgres.DefaultPoolConfig()
		pool, err := postgres.OpenPool(ctx, postgres.Config{
			User:     env.Get("STORAGE_USER", ""),
			Host:     env.Get("STORAGE_HOST", ""),
			Database: env.Get("STORAGE_DATABASE", ""),
			Password: env.Get("STORAGE_PASSWORD", ""),
			Port:     port,
		}, poolCfg)
		if err != nil {
			return nil, nil, err
		}
		storage, err := postgres.NewEventStorage(pool, logger, 0)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("connected to PostgreSQL", "maxConns", poolCfg.MaxConns)
		return storage, storage.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_BACKEND %q", backend)
	}
}

func telemetryConfig(serviceName string) telemetry.Config {
	cfg := telemetry.ConfigDefaults()
	cfg.ServiceName = serviceName
	if GitCommit != "" {
		cfg.ServiceVersion = GitCommit
	}
	cfg.Environment = env.Get("ENVIRONMENT", cfg.Environment)
	cfg.OTLPEndpoint = env.Get("OTEL_ENDPOINT", "")
	return cfg
}

func shutdownWithTimeout(logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("failed to shut down "+name, "error", err)
	}
}
