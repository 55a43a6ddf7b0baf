package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/connsync/database"
	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/config"
	"github.com/stacklok/connsync/internal/db"
)

// New creates a ledger based on the configured storage type.
//
// Database storage connects a pgx pool and, when migrate is set, applies pending schema
// migrations first. SQLite storage always migrates its file on open. Memory storage keeps
// everything in process.
func New(ctx context.Context, cfg *config.Config, c clock.Clock, migrate bool, opts ...Option) (Ledger, error) {
	if c == nil {
		c = clock.New()
	}
	opts = append([]Option{WithClock(c)}, opts...)

	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if migrate {
			if err := migratePostgres(cfg.Database); err != nil {
				return nil, err
			}
		}
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return NewPostgresLedger(pool, opts...)
	case config.StorageTypeSQLite:
		slog.Info("Using SQLite ledger", "path", cfg.SQLite.Path)
		return NewSQLiteLedger(cfg.SQLite.Path, opts...)
	case config.StorageTypeMemory:
		slog.Warn("Using in-memory ledger; job history does not survive a restart")
		return NewMemoryLedger(c), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.GetStorageType())
	}
}

func migratePostgres(cfg *config.DatabaseConfig) error {
	connString, err := cfg.GetConnectionString()
	if err != nil {
		return err
	}
	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()
	return database.MigrateUp(m)
}
