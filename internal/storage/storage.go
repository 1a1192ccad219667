// Package storage opens the configured database and builds its repositories.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fastygo/segments/internal/config"
	"github.com/fastygo/segments/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/segments/internal/infrastructure/postgres"
	"github.com/fastygo/segments/repository"
	"github.com/fastygo/segments/repository/postgres"
	"github.com/fastygo/segments/repository/sqlite"
)

// Storage bundles the repositories of one database.
type Storage struct {
	Driver     string
	Segments   repository.SegmentRepository
	Revisions  repository.RevisionRepository
	Users      repository.UserRepository
	Transactor repository.Transactor
	Ping       monitor.PingFunc

	close func() error
}

// Open connects to the database selected by cfg.Database.Driver. Postgres
// migrations run first when enabled. SQLite applies its embedded schema.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Database.SQLitePath, err)
		}
		logger.Info("opened sqlite database",
			zap.String("driver", config.DriverSQLite),
			zap.String("path", cfg.Database.SQLitePath))
		return &Storage{
			Driver:     config.DriverSQLite,
			Segments:   sqlite.NewSegmentRepository(db),
			Revisions:  sqlite.NewRevisionRepository(db),
			Users:      sqlite.NewUserRepository(db),
			Transactor: sqlite.NewTransactor(db),
			Ping:       db.PingContext,
			close:      db.Close,
		}, nil

	case config.DriverPostgres:
		if err := pgInfra.RunMigrations(cfg, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := pgInfra.OpenPool(ctx, cfg.Database, cfg.AppName, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return &Storage{
			Driver:     config.DriverPostgres,
			Segments:   postgres.NewSegmentRepository(pool),
			Revisions:  postgres.NewRevisionRepository(pool),
			Users:      postgres.NewUserRepository(pool),
			Transactor: postgres.NewTransactor(pool),
			Ping:       pool.Ping,
			close: func() error {
				pool.Close()
				logger.Info("closed postgres database")
				return nil
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// Close releases the underlying connections.
func (s *Storage) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}
