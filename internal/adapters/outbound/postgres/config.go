package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config holds the connection parameters of the event store database.
// These are the only connection options the store recognizes.
type Config struct {
	User     string
	Host     string
	Database string
	Password string
	Port     int
}

// Validate checks that every required option is set.
func (c Config) Validate() error {
	if c.User == "" {
		return fmt.Errorf("storage user is required")
	}
	if c.Host == "" {
		return fmt.Errorf("storage host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("storage database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("storage port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// URL renders the configuration as a PostgreSQL connection string.
// User and password are escaped, so they may contain reserved characters.
func (c Config) URL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

// PoolConfig holds connection pool tuning for the event store.
type PoolConfig struct {
	// MaxConns is the maximum number of connections in the pool.
	// Default: 25
	MaxConns int32

	// MinConns is the minimum number of connections in the pool.
	// Default: 2
	MinConns int32

	// MaxConnLifetime is the maximum amount of time a connection may be reused.
	// Default: 5 minutes
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum amount of time a connection may be idle.
	// Default: 1 minute
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        25,
		MinConns:        2,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 1 * time.Minute,
	}
}

// DefaultBatchSize is the number of rows per INSERT statement.
// 1000 events * 6 params = 6000 parameters, well under the 65535 limit.
const DefaultBatchSize = 1000
