// Package target delivers updates to Telegram chats.
package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"social2tg/internal/config"
	"social2tg/internal/domain"
	"social2tg/internal/summarizer"
)

const (
	KindBot   = "bot"
	KindUser  = "user"
	KindDummy = "dummy"
)

var ErrUnknownKind = errors.New("unknown target kind")

// Target publishes one update. It reports true only when the update was
// delivered; only then may the update be recorded as published.
type Target interface {
	Name() string
	Publish(ctx context.Context, update domain.Update) (bool, error)
}

type Deps struct {
	// Summarizer is optional; targets with summarize enabled use it for
	// texts that do not fit.
	Summarizer summarizer.Summarizer
	Log        *slog.Logger
}

type Factory func(name string, cfg config.TargetConfig, deps Deps) (Target, error)

var registry = map[string]Factory{
	KindBot: func(name string, cfg config.TargetConfig, deps Deps) (Target, error) {
		return NewBot(name, cfg, deps)
	},
	KindUser: func(name string, cfg config.TargetConfig, deps Deps) (Target, error) {
		return NewUser(name, cfg, deps)
	},
	KindDummy: func(name string, cfg config.TargetConfig, deps Deps) (Target, error) {
		return NewDummy(name, cfg, deps), nil
	},
}

// New builds the target registered for cfg.Kind.
func New(name string, cfg config.TargetConfig, deps Deps) (Target, error) {
	factory, ok := registry[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("target %q: %w: %q", name, ErrUnknownKind, cfg.Kind)
	}

	t, err := factory(name, cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", name, err)
	}

	return t, nil
}

func summarizerFor(cfg config.TargetConfig, deps Deps) summarizer.Summarizer {
	if !cfg.Summarize {
		return nil
	}

	if deps.Summarizer == nil && deps.Log != nil {
		deps.Log.Warn("Summarize is enabled but no summarizer is configured, texts will be cut",
			"kind", cfg.Kind)
	}

	return deps.Summarizer
}
