package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/repositories"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// KeyCache is the key cache API shared by the SQLite and Postgres repositories.
type KeyCache interface {
	Get(ctx context.Context, trackID string) (*models.KeyRecord, error)
	Upsert(ctx context.Context, rec *models.KeyRecord) error
	List(ctx context.Context, limit, offset int) ([]*models.KeyRecord, error)
	Delete(ctx context.Context, trackID string) error
	Count(ctx context.Context) (int, error)
}

// Accounts is the account store API shared by the SQLite and Postgres repositories.
type Accounts interface {
	Get(ctx context.Context, spotifyID string) (*models.UserAccount, error)
	RefreshToken(ctx context.Context, spotifyID string) (string, error)
	SetRefreshToken(ctx context.Context, spotifyID, token string) error
	Upsert(ctx context.Context, account *models.UserAccount) error
}

// store is an open database with its repositories.
type store struct {
	driver   string
	keys     KeyCache
	accounts Accounts
	applied  int // migrations applied on open (sqlite only)
	close    func()
}

func (s *store) Close() {
	if s.close != nil {
		s.close()
	}
}

// openStore opens the configured database and brings its schema up to date.
func openStore(ctx context.Context, cfg shared.DatabaseConfig, logger *log.Logger) (*store, error) {
	switch cfg.Driver {
	case shared.DriverPostgres:
		pool, err := repositories.NewPostgresPool(ctx, cfg.URL, cfg.MaxOpenConns)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := repositories.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}

		logger.Debug("database opened", "driver", cfg.Driver)
		return &store{
			driver:   cfg.Driver,
			keys:     repositories.NewPostgresKeyCache(pool),
			accounts: repositories.NewPostgresAccounts(pool),
			close:    pool.Close,
		}, nil
	default:
		db, err := shared.NewDatabase(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

		applied, err := shared.RunMigrations(db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		logger.Debug("database opened", "driver", shared.DriverSQLite, "path", cfg.Path, "migrations_applied", applied)
		return &store{
			driver:   shared.DriverSQLite,
			keys:     repositories.NewKeyCacheRepository(db),
			accounts: repositories.NewAccountRepository(db),
			applied:  applied,
			close:    func() { db.Close() },
		}, nil
	}
}
