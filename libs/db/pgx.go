package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/santiagopena171/app-agenda/libs/config"
)

type Pool struct {
	*pgxpool.Pool
}

// PoolConfig overrides pool sizing; zero values keep the defaults.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// PoolConfigFromEnv reads DB_MAX_CONNS and DB_MIN_CONNS.
func PoolConfigFromEnv() (PoolConfig, error) {
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return PoolConfig{}, err
	}
	minConns, err := config.Int("DB_MIN_CONNS", 1)
	if err != nil {
		return PoolConfig{}, err
	}
	if minConns > maxConns {
		return PoolConfig{}, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", minConns, maxConns)
	}
	return PoolConfig{MaxConns: int32(maxConns), MinConns: int32(minConns)}, nil
}

// Open connects and pings; a pool that cannot reach the server is closed before returning.
func Open(ctx context.Context, databaseURL string, opts ...PoolConfig) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	for _, o := range opts {
		if o.MaxConns > 0 {
			cfg.MaxConns = o.MaxConns
		}
		if o.MinConns > 0 {
			cfg.MinConns = o.MinConns
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.ConnConfig.Host, err)
	}
	return &Pool{Pool: pool}, nil
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
}
