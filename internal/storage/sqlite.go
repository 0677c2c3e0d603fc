package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3" // Required by the library implementation.
)

func OpenSQLite(ctx context.Context, dbPath string, log *slog.Logger) (*SQL, error) {
	dbFile, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open DB file: %w", err)
	}

	return initSQLite(ctx, dbFile, dbPath, log)
}

// initSQLite migrates an opened DB and takes ownership of it: the DB is
// closed when anything fails.
func initSQLite(ctx context.Context, dbFile *sql.DB, dbPath string, log *slog.Logger) (*SQL, error) {
	// A single writer process; one connection avoids "database is locked".
	dbFile.SetMaxOpenConns(1)

	dbInstance, err := sqlite3.WithInstance(dbFile, &sqlite3.Config{})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create DB instance: %w", err), dbFile.Close())
	}

	if err = migrateUp(ctx, dbInstance, "sqlite3", "migrations/sqlite", dbPath, log); err != nil {
		return nil, errors.Join(err, dbFile.Close())
	}

	return &SQL{
		db:          dbFile,
		findQuery:   "select update_id, feed, at from published where update_id = ? and feed = ? limit 1",
		insertQuery: "insert into published (update_id, feed, at) values (?, ?, ?)",
		now:         time.Now,
		log:         log,
	}, nil
}
