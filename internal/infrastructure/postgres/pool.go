package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fastygo/segments/internal/config"
)

// PoolConfig translates the database settings into a pgxpool config.
// MinConns is clamped to MaxConns.
func PoolConfig(db config.DatabaseConfig, appName string) (*pgxpool.Config, error) {
	if db.URL == "" {
		return nil, fmt.Errorf("postgres url is empty")
	}
	pgxCfg, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}

	if db.MaxConns > 0 {
		pgxCfg.MaxConns = int32(db.MaxConns)
	}
	if db.MinConns > 0 {
		pgxCfg.MinConns = int32(db.MinConns)
	}
	if pgxCfg.MinConns > pgxCfg.MaxConns {
		pgxCfg.MinConns = pgxCfg.MaxConns
	}
	if db.MaxConnLifetime > 0 {
		pgxCfg.MaxConnLifetime = db.MaxConnLifetime
	}
	if db.MaxConnIdleTime > 0 {
		pgxCfg.MaxConnIdleTime = db.MaxConnIdleTime
	}
	if db.ConnectTimeout > 0 {
		pgxCfg.ConnConfig.ConnectTimeout = db.ConnectTimeout
	}
	if appName != "" {
		pgxCfg.ConnConfig.RuntimeParams["application_name"] = appName
	}
	return pgxCfg, nil
}

// OpenPool connects and pings. The log line names the database from the
// parsed config, so it is right whether DATABASE_URL or the DB_* parts
// were used.
func OpenPool(ctx context.Context, db config.DatabaseConfig, appName string, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pgxCfg, err := PoolConfig(db, appName)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pgxCfg.ConnConfig.ConnectTimeout+time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("opened postgres database",
		zap.String("driver", config.DriverPostgres),
		zap.String("host", pgxCfg.ConnConfig.Host),
		zap.String("database", pgxCfg.ConnConfig.Database),
		zap.Int32("max_conns", pgxCfg.MaxConns),
		zap.Int32("min_conns", pgxCfg.MinConns))
	return pool, nil
}
