package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool connection pool
type DB struct {
	*pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPool creates a new database connection pool
func NewPool(ctx context.Context, cfg Config) (*DB, error) {
	config, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	} else {
		config.MaxConns = 25
	}

	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	} else {
		config.MinConns = 5
	}

	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	} else {
		config.MaxConnLifetime = time.Hour
	}

	if cfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = cfg.MaxConnIdleTime
	} else {
		config.MaxConnIdleTime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.Ping(ctx)
}

// Status describes the server and pool as seen right now
type Status struct {
	Version         string `json:"version"`
	MaxConnections  string `json:"max_connections"`
	OpenConnections int32  `json:"open_connections"`
	IdleConnections int32  `json:"idle_connections"`
}

// ServerStatus collects database server and pool statistics
func (db *DB) ServerStatus(ctx context.Context) (*Status, error) {
	var st Status

	if err := db.QueryRow(ctx, "SELECT version()").Scan(&st.Version); err != nil {
		return nil, fmt.Errorf("failed to read server version: %w", err)
	}
	if err := db.QueryRow(ctx, "SHOW max_connections").Scan(&st.MaxConnections); err != nil {
		return nil, fmt.Errorf("failed to read max_connections: %w", err)
	}

	stat := db.Stat()
	st.OpenConnections = stat.TotalConns()
	st.IdleConnections = stat.IdleConns()

	return &st, nil
}
