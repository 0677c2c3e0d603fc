// Package feed moves updates from sources to targets, skipping what the
// ledger says was already published.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"social2tg/internal/domain"
	"social2tg/internal/source"
	"social2tg/internal/storage"
	"social2tg/internal/target"
)

type State int

const (
	StateInit State = iota
	StateGathering
	StatePublishing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateGathering:
		return "gathering"
	case StatePublishing:
		return "publishing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var ErrState = errors.New("feed is in the wrong state")

// Stats counts what happened to every (target, update) pair.
type Stats struct {
	Published int
	Skipped   int
	Failed    int
}

// Feed is built fresh for every run and goes through Init, Gathering,
// Publishing and Done once. It is not safe for concurrent use: the ledger
// check and the record that follows it are not atomic.
type Feed struct {
	name    string
	sources []source.Source
	targets []target.Target
	store   storage.Storage
	state   State
	log     *slog.Logger
}

func New(
	name string,
	sources []source.Source,
	targets []target.Target,
	store storage.Storage,
	log *slog.Logger,
) *Feed {
	return &Feed{
		name:    name,
		sources: sources,
		targets: targets,
		store:   store,
		state:   StateInit,
		log:     log,
	}
}

func (f *Feed) Name() string {
	return f.name
}

func (f *Feed) State() State {
	return f.state
}

func (f *Feed) String() string {
	return fmt.Sprintf("Feed(%q)", f.name)
}

// Gather asks every source in order and concatenates what they return. A
// failing source is logged and whatever it returned is still kept.
func (f *Feed) Gather(ctx context.Context) ([]domain.Update, error) {
	if f.state != StateInit {
		return nil, fmt.Errorf("gather %s: %w: %s", f, ErrState, f.state)
	}
	f.state = StateGathering

	var updates []domain.Update

	for _, src := range f.sources {
		if err := ctx.Err(); err != nil {
			return updates, err
		}

		got, err := src.Updates(ctx)
		if err != nil {
			f.log.ErrorContext(ctx, "Failed to get updates",
				"feed", f.name,
				"source", src.Name(),
				"gathered", len(got),
				"error", err)
		}

		f.log.InfoContext(ctx, "Updates are gathered",
			"feed", f.name,
			"source", src.Name(),
			"count", len(got))

		updates = append(updates, got...)
	}

	return updates, nil
}

// Publish sends every update to every target, target by target, in the order
// given. A pair found in the ledger is skipped and a delivered pair is
// recorded. Failures are logged and never stop the batch.
func (f *Feed) Publish(ctx context.Context, updates []domain.Update) (Stats, error) {
	var stats Stats

	if f.state != StateGathering {
		return stats, fmt.Errorf("publish %s: %w: %s", f, ErrState, f.state)
	}
	f.state = StatePublishing
	defer func() {
		f.state = StateDone
	}()

	for _, trg := range f.targets {
		for _, update := range updates {
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			switch f.publishOne(ctx, trg, update) {
			case outcomePublished:
				stats.Published++
			case outcomeSkipped:
				stats.Skipped++
			case outcomeFailed:
				stats.Failed++
			}
		}
	}

	f.log.InfoContext(ctx, "Feed is published",
		"feed", f.name,
		"published", stats.Published,
		"skipped", stats.Skipped,
		"failed", stats.Failed)

	return stats, nil
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (f *Feed) publishOne(ctx context.Context, trg target.Target, update domain.Update) outcome {
	record, found, err := f.store.FindPublished(ctx, update, f.name)
	if err != nil {
		f.log.ErrorContext(ctx, "Failed to check ledger, skipping update",
			"feed", f.name,
			"target", trg.Name(),
			"update", update.String(),
			"error", err)

		return outcomeFailed
	}

	if found {
		f.log.DebugContext(ctx, "Update is already published",
			"feed", f.name,
			"target", trg.Name(),
			"update", update.String(),
			"at", record.At)

		return outcomeSkipped
	}

	ok, err := trg.Publish(ctx, update)
	if !ok {
		f.log.ErrorContext(ctx, "Failed to publish update",
			"feed", f.name,
			"target", trg.Name(),
			"update", update.String(),
			"error", err)

		return outcomeFailed
	}

	if err = f.store.RememberPublished(ctx, update, f.name); err != nil {
		f.log.ErrorContext(ctx, "Failed to remember published update",
			"feed", f.name,
			"target", trg.Name(),
			"update", update.String(),
			"error", err)
	}

	f.log.InfoContext(ctx, "Update is published",
		"feed", f.name,
		"target", trg.Name(),
		"update", update.String())

	return outcomePublished
}
