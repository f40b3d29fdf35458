// Package main provides the event persister.
// It consumes contract event batches from SQS and saves them to the event
// store through the event storage service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	httpadapter "github.com/archon-research/event-store/internal/adapters/inbound/http"
	"github.com/archon-research/event-store/internal/adapters/outbound/memory"
	"github.com/archon-research/event-store/internal/adapters/outbound/postgres"
	rediscache "github.com/archon-research/event-store/internal/adapters/outbound/redis"
	"github.com/archon-research/event-store/internal/adapters/outbound/sqs"
	"github.com/archon-research/event-store/internal/adapters/outbound/telemetry"
	"github.com/archon-research/event-store/internal/pkg/env"
	"github.com/archon-research/event-store/internal/ports/outbound"
	eventpersister "github.com/archon-research/event-store/internal/services/event_persister"
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
		slog.Error("event persister failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	showVersion := flag.Bool("version", false, "Show version information and exit")
	workers := flag.Int("workers", eventpersister.ConfigDefaults().Workers, "Number of concurrent workers")
	flag.Parse()

	if *showVersion {
		fmt.Printf("event-persister\n")
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

	logger.Info("starting event-persister",
		"commit", GitCommit,
		"branch", GitBranch,
		"buildTime", BuildTime,
	)

	queueURL := env.Get("AWS_SQS_QUEUE_EVENTS", "")
	if queueURL == "" {
		return fmt.Errorf("AWS_SQS_QUEUE_EVENTS environment variable is required")
	}
	releaseDelay, err := env.GetDuration("PERSISTER_RELEASE_DELAY", eventpersister.ConfigDefaults().ReleaseDelay)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetryConfig("event-persister"))
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	defer shutdownWithTimeout(logger, "tracer", shutdownTracer)

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetryConfig("event-persister"))
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer shutdownWithTimeout(logger, "metrics", shutdownMetrics)

	metrics, err := telemetry.NewPersisterMetrics("github.com/archon-research/event-store/cmd/event-persister")
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	storage, closeStorage, err := openStorage(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	// Saves bump the shared cache generation so the query API never serves
	// results older than the last persisted batch.
	if redisAddr := env.Get("REDIS_ADDR", ""); redisAddr != "" {
		cacheCfg := rediscache.ConfigDefaults()
		cacheCfg.Addr = redisAddr
		cacheCfg.Password = env.Get("REDIS_PASSWORD", "")
		cached, err := rediscache.NewCachedEventStorage(storage, cacheCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create Redis cache: %w", err)
		}
		defer cached.Close()
		if err := cached.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("Redis cache invalidation enabled", "addr", redisAddr)
		storage = cached
	}

	ingester, err := eventstorage.NewService(storage, logger)
	if err != nil {
		return fmt.Errorf("failed to create event storage service: %w", err)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(env.Get("AWS_REGION", "us-east-1")))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	consumer, err := sqs.NewConsumer(awsCfg, sqs.Config{
		QueueURL:        queueURL,
		WaitTimeSeconds: sqs.ConfigDefaults().WaitTimeSeconds,
	}, logger, func(o *awssqs.Options) {
		if endpoint := env.Get("AWS_SQS_ENDPOINT", ""); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create SQS consumer: %w", err)
	}
	defer consumer.Close()
	logger.Info("SQS consumer created", "queueURL", queueURL)

	persisterCfg := eventpersister.ConfigDefaults()
	persisterCfg.Workers = *workers
	persisterCfg.ReleaseDelay = releaseDelay
	persisterCfg.IsTransient = postgres.IsTransient
	persisterCfg.Metrics = metrics
	persisterCfg.Logger = logger

	service, err := eventpersister.NewService(persisterCfg, consumer, ingester)
	if err != nil {
		return fmt.Errorf("failed to create event persister: %w", err)
	}

	var shuttingDown atomic.Bool
	healthCfg := httpadapter.HealthServerConfigDefaults()
	healthCfg.Addr = env.Get("HEALTH_ADDR", healthCfg.Addr)
	healthCfg.Logger = logger
	health := httpadapter.NewHealthServer(healthCfg, service, &shuttingDown)
	health.Start()
	defer func() {
		if err := health.Shutdown(5 * time.Second); err != nil {
			logger.Warn("failed to shut down health server", "error", err)
		}
	}()

	err = service.Run(ctx)
	shuttingDown.Store(true)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event persister stopped: %w", err)
	}

	logger.Info("event persister stopped")
	return nil
}

// openStorage returns the backend selected by STORAGE_BACKEND and a func
// that releases it.
func openStorage(ctx context.Context, logger *slog.Logger) (outbound.EventStorage, func(), error) {
	switch backend := env.Get("STORAGE_BACKEND", "postgres"); backend {
	case "memory":
		logger.Warn("using in-memory event storage, events are lost on exit")
		return memory.NewEventStorage(logger), func() {}, nil
	case "postgres":
		port, err := env.GetInt("STORAGE_PORT", 5432)
		if err != nil {
			return nil, nil, err
		}
		pool, err := postgres.OpenPool(ctx, postgres.Config{
			User:     env.Get("STORAGE_USER", ""),
			Host:     env.Get("STORAGE_HOST", ""),
			Database: env.Get("STORAGE_DATABASE", ""),
			Password: env.Get("STORAGE_PASSWORD", ""),
			Port:     port,
		}, postgres.DefaultPoolConfig())
		if err != nil {
			return nil, nil, err
		}
		storage, err := postgres.NewEventStorage(pool, logger, 0)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("connected to PostgreSQL")
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
