package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"social2tg/internal/config"
	"social2tg/internal/ratelimiter"
	"social2tg/internal/source"
	"social2tg/internal/storage"
	"social2tg/internal/target"
	"time"
)

// Builder turns the feeds file into feeds, resolving every source, target
// and storage through their registries.
type Builder struct {
	file       *config.File
	dbPath     string
	sourceDeps source.Deps
	targetDeps target.Deps
	storages   *storage.Opener
	log        *slog.Logger
}

func NewBuilder(
	file *config.File,
	dbPath string,
	sourceDeps source.Deps,
	targetDeps target.Deps,
	storages *storage.Opener,
	log *slog.Logger,
) *Builder {
	return &Builder{
		file:       file,
		dbPath:     dbPath,
		sourceDeps: sourceDeps,
		targetDeps: targetDeps,
		storages:   storages,
		log:        log,
	}
}

func (b *Builder) Build(ctx context.Context, cfg config.FeedConfig) (*Feed, error) {
	sources := make([]source.Source, 0, len(cfg.Sources))
	for _, name := range cfg.Sources {
		srcCfg, ok := b.file.Sources[name]
		if !ok {
			return nil, fmt.Errorf("feed %q: unknown source %q", cfg.Name, name)
		}

		src, err := source.New(name, srcCfg, b.sourceDeps)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", cfg.Name, err)
		}
		sources = append(sources, src)
	}

	targets := make([]target.Target, 0, len(cfg.Targets))
	for _, name := range cfg.Targets {
		trgCfg, ok := b.file.Targets[name]
		if !ok {
			return nil, fmt.Errorf("feed %q: unknown target %q", cfg.Name, name)
		}

		trg, err := target.New(name, trgCfg, b.targetDeps)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", cfg.Name, err)
		}
		targets = append(targets, trg)
	}

	store, err := b.storages.Open(ctx, b.file.FeedStorage(cfg, b.dbPath))
	if err != nil {
		return nil, fmt.Errorf("feed %q: open storage: %w", cfg.Name, err)
	}

	if len(sources) == 0 || len(targets) == 0 {
		b.log.WarnContext(ctx, "Feed has nothing to do",
			"feed", cfg.Name,
			"sources", len(sources),
			"targets", len(targets))
	}

	return New(cfg.Name, sources, targets, store, b.log), nil
}

// Runner processes all configured feeds one after another.
type Runner struct {
	builder *Builder
	feeds   []config.FeedConfig
	delay   time.Duration
	sleep   ratelimiter.Sleeper
	cleanup []func() error
	log     *slog.Logger
}

type RunnerOption func(*Runner)

// WithCleanup adds a release step run at the end of every run, whatever
// happened during it. Anything that must outlive a single run, such as the
// storage opener, is closed by the owner of the runner instead.
func WithCleanup(fn func() error) RunnerOption {
	return func(r *Runner) {
		r.cleanup = append(r.cleanup, fn)
	}
}

func WithSleeper(s ratelimiter.Sleeper) RunnerOption {
	return func(r *Runner) {
		r.sleep = s
	}
}

func NewRunner(
	builder *Builder,
	feeds []config.FeedConfig,
	delay time.Duration,
	log *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		builder: builder,
		feeds:   feeds,
		delay:   delay,
		sleep:   ratelimiter.Sleep,
		log:     log,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run is one full pass over the feeds, for callers that only care whether
// it failed.
func (r *Runner) Run(ctx context.Context) error {
	_, err := r.RunOnce(ctx)

	return err
}

// RunOnce builds every feed first, so a configuration error stops the run
// before anything is gathered, then gathers and publishes feed by feed with
// a pause between feeds. Cleanup runs in every case. The returned stats
// cover the feeds processed before any error.
func (r *Runner) RunOnce(ctx context.Context) (total Stats, err error) {
	defer func() {
		err = errors.Join(err, r.runCleanup())
	}()

	feeds := make([]*Feed, 0, len(r.feeds))
	for _, cfg := range r.feeds {
		f, buildErr := r.builder.Build(ctx, cfg)
		if buildErr != nil {
			return total, fmt.Errorf("build feeds: %w", buildErr)
		}
		feeds = append(feeds, f)
	}

	for i, f := range feeds {
		r.log.InfoContext(ctx, "Processing feed",
			"feed", f.Name(),
			"sources", len(f.sources),
			"targets", len(f.targets))

		stats, processErr := r.process(ctx, f)
		if processErr != nil {
			return total, fmt.Errorf("process %s: %w", f, processErr)
		}

		total.Published += stats.Published
		total.Skipped += stats.Skipped
		total.Failed += stats.Failed

		if i < len(feeds)-1 && r.delay > 0 {
			if sleepErr := r.sleep(ctx, r.delay); sleepErr != nil {
				return total, sleepErr
			}
		}
	}

	r.log.InfoContext(ctx, "Run is finished",
		"feeds", len(feeds),
		"published", total.Published,
		"skipped", total.Skipped,
		"failed", total.Failed)

	return total, nil
}

func (r *Runner) process(ctx context.Context, f *Feed) (Stats, error) {
	updates, err := f.Gather(ctx)
	if err != nil {
		return Stats{}, err
	}

	return f.Publish(ctx, updates)
}

func (r *Runner) runCleanup() error {
	var errs []error
	for _, fn := range r.cleanup {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		r.log.Error("Failed to clean up after run",
			"error", err)

		return fmt.Errorf("cleanup: %w", err)
	}

	return nil
}
