// Package source scrapes updates from Instagram mirrors. Every source
// returns its updates oldest first so they reach the chat in the order they
// were posted.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"social2tg/internal/config"
	"social2tg/internal/domain"
	"social2tg/internal/transport"
)

const (
	KindGramhir     = "gramhir"
	KindInstaloader = "instaloader"
	KindRSSBridge   = "rssbridge"
	KindDummy       = "dummy"
)

var ErrUnknownKind = errors.New("unknown source kind")

// Source produces the updates of one account. A source that fails part way
// returns what it managed to gather together with the error.
type Source interface {
	Name() string
	Updates(ctx context.Context) ([]domain.Update, error)
}

type Deps struct {
	Transports *transport.Pool
	Log        *slog.Logger
}

type Factory func(name string, cfg config.SourceConfig, deps Deps) (Source, error)

var registry = map[string]Factory{
	KindGramhir: func(name string, cfg config.SourceConfig, deps Deps) (Source, error) {
		t, err := deps.Transports.Get(cfg.Transport)
		if err != nil {
			return nil, err
		}

		return NewGramhir(name, cfg, t, deps.Log)
	},
	KindInstaloader: func(name string, cfg config.SourceConfig, deps Deps) (Source, error) {
		t, err := deps.Transports.Get(transport.KindHTTP)
		if err != nil {
			return nil, err
		}

		return NewInstaloader(name, cfg, t, deps.Log)
	},
	KindRSSBridge: func(name string, cfg config.SourceConfig, deps Deps) (Source, error) {
		t, err := deps.Transports.Get(cfg.Transport)
		if err != nil {
			return nil, err
		}

		return NewRSSBridge(name, cfg, t, deps.Log)
	},
	KindDummy: func(name string, cfg config.SourceConfig, deps Deps) (Source, error) {
		return NewDummy(name, cfg), nil
	},
}

// New builds the source registered for cfg.Kind.
func New(name string, cfg config.SourceConfig, deps Deps) (Source, error) {
	factory, ok := registry[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("source %q: %w: %q", name, ErrUnknownKind, cfg.Kind)
	}

	s, err := factory(name, cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", name, err)
	}

	return s, nil
}
