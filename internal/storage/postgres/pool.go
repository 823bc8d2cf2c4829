// Package postgres stores submitted content in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/argos/internal/config"
)

// Pool is the connection pool shared by the content repository and health checks.
type Pool struct {
	pool *pgxpool.Pool
	dsn  string
}

// NewPool connects to PostgreSQL.
//
// Precondition: cfg must pass config validation for the postgres backend.
// Postcondition: Returns a pinged Pool or a non-nil error; no connections leak on failure.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Pool{pool: pool, dsn: dsn}, nil
}

// Health pings the database, giving up after timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Migrate applies every pending embedded migration.
func (p *Pool) Migrate() error {
	m, err := NewMigrator(p.dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	return Up(m)
}

// Close releases all connections. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB exposes the pgx pool to repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
