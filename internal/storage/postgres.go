package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/lib/pq" // Required by the library implementation.
)

func OpenPostgres(ctx context.Context, dsn string, log *slog.Logger) (*SQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open DB: %w", err)
	}

	return initPostgres(ctx, db, log)
}

// initPostgres checks and migrates an opened DB, closing it on failure.
func initPostgres(ctx context.Context, db *sql.DB, log *slog.Logger) (*SQL, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping DB: %w", err), db.Close())
	}

	dbInstance, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create DB instance: %w", err), db.Close())
	}

	if err = migrateUp(ctx, dbInstance, "postgres", "migrations/postgres", "postgres", log); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	return &SQL{
		db:          db,
		findQuery:   "select update_id, feed, at from published where update_id = $1 and feed = $2 limit 1",
		insertQuery: "insert into published (update_id, feed, at) values ($1, $2, $3)",
		now:         time.Now,
		log:         log,
	}, nil
}
