package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"social2tg/internal/config"
)

// Opener opens each distinct storage config once, so feeds sharing a ledger
// share the connection, and closes them all at the end of the process.
type Opener struct {
	opened map[config.StorageConfig]Storage
	log    *slog.Logger
}

func NewOpener(log *slog.Logger) *Opener {
	return &Opener{
		opened: make(map[config.StorageConfig]Storage),
		log:    log,
	}
}

func (o *Opener) Open(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	if s, ok := o.opened[cfg]; ok {
		return s, nil
	}

	s, err := open(ctx, cfg, o.log)
	if err != nil {
		return nil, err
	}

	o.opened[cfg] = s

	return s, nil
}

func (o *Opener) Close() error {
	var errs []error

	for cfg, s := range o.opened {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s storage: %w", cfg.Kind, err))
		}
		delete(o.opened, cfg)
	}

	return errors.Join(errs...)
}

func open(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (Storage, error) {
	switch cfg.Kind {
	case KindMemory:
		return NewMemory(), nil
	case KindSQLite:
		if cfg.Path == "" {
			return nil, errors.New("sqlite storage: path is required")
		}
		return OpenSQLite(ctx, cfg.Path, log)
	case KindPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("postgres storage: dsn is required")
		}
		return OpenPostgres(ctx, cfg.DSN, log)
	case KindValkey:
		if cfg.Address == "" {
			return nil, errors.New("valkey storage: address is required")
		}
		return OpenValkey(ctx, cfg.Address, cfg.Password, log)
	case KindGCS:
		return OpenGCS(ctx, cfg.Bucket, cfg.Prefix, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
