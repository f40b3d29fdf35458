// Package redis provides a Redis read-through cache in front of an
// EventStorage backend.
//
// Cached results live under prefix:gen:<generation>:<query>:<args>. Every
// successful Save bumps the generation counter, so entries written before the
// save are never read again and simply expire with their TTL.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/event-store/internal/domain/entity"
	"github.com/archon-research/event-store/internal/ports/outbound"
)

// Compile-time checks that CachedEventStorage implements the outbound ports
var (
	_ outbound.EventStorage = (*CachedEventStorage)(nil)
	_ outbound.Pinger       = (*CachedEventStorage)(nil)
)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached query results live before expiring
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       5 * time.Minute,
		KeyPrefix: "events",
	}
}

// CachedEventStorage decorates an EventStorage with a Redis query cache.
type CachedEventStorage struct {
	backend   outbound.EventStorage
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewCachedEventStorage creates a cache over backend.
func NewCachedEventStorage(backend outbound.EventStorage, cfg Config, logger *slog.Logger) (*CachedEventStorage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return newCachedEventStorage(backend, client, cfg, logger)
}

func newCachedEventStorage(backend outbound.EventStorage, client *redis.Client, cfg Config, logger *slog.Logger) (*CachedEventStorage, error) {
	if backend == nil {
		return nil, fmt.Errorf("event storage cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = ConfigDefaults().TTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CachedEventStorage{
		backend:   backend,
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-event-cache"),
	}, nil
}

// Ping checks the Redis connection and, when supported, the backend.
func (c *CachedEventStorage) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	if p, ok := c.backend.(outbound.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the Redis connection. The backend is not closed.
func (c *CachedEventStorage) Close() error {
	return c.client.Close()
}

// Save writes through to the backend and invalidates every cached result.
func (c *CachedEventStorage) Save(ctx context.Context, contractName string, events []*entity.Event, deleteExisting bool) error {
	if err := c.backend.Save(ctx, contractName, events, deleteExisting); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		c.logger.Warn("failed to bump cache generation, cached reads may be stale until TTL",
			"contract", contractName, "error", err)
	}
	return nil
}

// GetEvents serves the query from cache or the backend.
func (c *CachedEventStorage) GetEvents(ctx context.Context, args outbound.GetEventsArgs) ([]entity.EventRecord, error) {
	return c.cached(ctx, "getEvents", args, func() ([]entity.EventRecord, error) {
		return c.backend.GetEvents(ctx, args)
	})
}

// FindByReturnValues serves the query from cache or the backend.
func (c *CachedEventStorage) FindByReturnValues(ctx context.Context, args outbound.FindByReturnValuesArgs) ([]entity.EventRecord, error) {
	return c.cached(ctx, "findByReturnValues", args, func() ([]entity.EventRecord, error) {
		return c.backend.FindByReturnValues(ctx, args)
	})
}

// GetKittyHistory serves the query from cache or the backend.
func (c *CachedEventStorage) GetKittyHistory(ctx context.Context, kittyID string) ([]entity.EventRecord, error) {
	return c.cached(ctx, "getKittyHistory", kittyID, func() ([]entity.EventRecord, error) {
		return c.backend.GetKittyHistory(ctx, kittyID)
	})
}

func (c *CachedEventStorage) cached(ctx context.Context, query string, args any, load func() ([]entity.EventRecord, error)) ([]entity.EventRecord, error) {
	key, err := c.key(ctx, query, args)
	if err != nil {
		c.logger.Warn("cache unavailable, reading from backend", "query", query, "error", err)
		return load()
	}

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var records []entity.EventRecord
		if err := json.Unmarshal(data, &records); err == nil {
			return records, nil
		}
		c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("failed to read cache", "key", key, "error", err)
	}

	records, err := load()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(records)
	if err != nil {
		c.logger.Warn("failed to encode cache entry", "key", key, "error", err)
		return records, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to write cache", "key", key, "error", err)
	}
	return records, nil
}

func (c *CachedEventStorage) generationKey() string {
	return c.keyPrefix + ":generation"
}

// generation returns the current cache generation. A missing counter is generation 0.
func (c *CachedEventStorage) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cache generation: %w", err)
	}
	return gen, nil
}

// key generates a cache key in the format prefix:gen:generation:query:argsDigest
func (c *CachedEventStorage) key(ctx context.Context, query string, args any) (string, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key args: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("%s:gen:%d:%s:%s", c.keyPrefix, gen, query, hex.EncodeToString(sum[:16])), nil
}
