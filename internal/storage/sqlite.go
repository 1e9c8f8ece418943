package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// NewSQLite opens a SQLite-backed store at the given path. Suitable for
// dry-run and single-host deployments; the same schema-version contract
// as Postgres applies.
func NewSQLite(ctx context.Context, path string, logger *zap.Logger) (Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The sqlite3 driver is not safe for concurrent writers on one file.
	db.SetMaxOpenConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &sqlStore{db: db, postgres: false, logger: logger}
	err = store.init(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite-store-opened", zap.String("path", path))

	return store, nil
}
