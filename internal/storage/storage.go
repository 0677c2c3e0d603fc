// Package storage is the dedup ledger: it remembers which updates were
// already published in which feed.
package storage

import (
	"context"
	"errors"
	"social2tg/internal/domain"
)

const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindValkey   = "valkey"
	KindGCS      = "gcs"
)

var ErrUnknownKind = errors.New("unknown storage kind")

// Storage implementations must give the same answers for the same calls.
// Duplicate records are allowed; only the existence of a match matters.
type Storage interface {
	FindPublished(ctx context.Context, update domain.Update, feed string) (domain.Record, bool, error)
	RememberPublished(ctx context.Context, update domain.Update, feed string) error
	Close() error
}
