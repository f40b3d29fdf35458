// Package postgres provides the PostgreSQL adapter of the event store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool creates and configures a PostgreSQL connection pool using pgxpool.
// It verifies connectivity by pinging the database before returning.
// The caller is responsible for closing the returned *pgxpool.Pool.
func OpenPool(ctx context.Context, cfg Config, poolCfg PoolConfig) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if poolCfg.MaxConns > 0 {
		poolConfig.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		poolConfig.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
