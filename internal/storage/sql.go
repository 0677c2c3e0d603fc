package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"social2tg/internal/domain"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// SQL is the durable ledger on top of a database/sql connection: one
// published table, no uniqueness constraint.
type SQL struct {
	db          *sql.DB
	findQuery   string
	insertQuery string
	now         func() time.Time
	log         *slog.Logger
}

func (s *SQL) FindPublished(ctx context.Context, update domain.Update, feed string) (domain.Record, bool, error) {
	var (
		r  domain.Record
		at int64
	)

	err := s.db.QueryRowContext(ctx, s.findQuery, update.Identifier, feed).Scan(&r.UpdateID, &r.Feed, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("query published: %w", err)
	}

	r.At = time.Unix(at, 0).UTC()

	return r, true, nil
}

func (s *SQL) RememberPublished(ctx context.Context, update domain.Update, feed string) error {
	if _, err := s.db.ExecContext(ctx, s.insertQuery, update.Identifier, feed, s.now().Unix()); err != nil {
		return fmt.Errorf("insert published: %w", err)
	}

	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func migrateUp(
	ctx context.Context,
	driver database.Driver,
	driverName string,
	dir string,
	target string,
	log *slog.Logger,
) error {
	srcInstance, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("create source instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcInstance, driverName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	migrateErr := m.Up()

	version, dirty, versionErr := m.Version()
	fields := []any{
		"storage", driverName,
		"target", target,
	}

	if versionErr == nil {
		fields = append(fields, "version", version, "dirty", dirty)
	} else if !errors.Is(versionErr, migrate.ErrNilVersion) {
		log.WarnContext(ctx, "Failed to fetch migration version",
			"error", versionErr,
			"target", target)
	}

	if migrateErr != nil {
		if !errors.Is(migrateErr, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", migrateErr)
		}

		log.InfoContext(ctx, "No migrations to apply", fields...)
	} else {
		log.InfoContext(ctx, "DB is migrated", fields...)
	}

	return nil
}
