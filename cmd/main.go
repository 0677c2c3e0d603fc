package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"social2tg/internal/config"
	"social2tg/internal/feed"
	"social2tg/internal/scheduler"
	"social2tg/internal/source"
	"social2tg/internal/storage"
	"social2tg/internal/summarizer"
	"social2tg/internal/target"
	"social2tg/internal/transport"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config",
			"error", err)

		return 1
	}

	log, closeLog, err := initLogger(cfg)
	if err != nil {
		slog.Error("Failed to open log file",
			"error", err,
			"logPath", cfg.LogPath)

		return 1
	}
	defer closeLog()
	slog.SetDefault(log)

	start := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	file, err := config.LoadFile(cfg.ConfigPath)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load feeds file",
			"error", err,
			"configPath", cfg.ConfigPath)

		return 1
	}
	log.InfoContext(ctx, "Feeds file is loaded",
		"configPath", cfg.ConfigPath,
		"feeds", len(file.Feeds),
		"sources", len(file.Sources),
		"targets", len(file.Targets))

	pool := transport.NewPool(transport.Options{
		Proxy:           cfg.Proxy,
		HTTPTimeout:     cfg.HTTPTimeout,
		BrowserHeadless: cfg.BrowserHeadless,
	}, log)
	storages := storage.NewOpener(log)
	defer func() {
		if closeErr := storages.Close(); closeErr != nil {
			log.ErrorContext(ctx, "Failed to close storages",
				"error", closeErr)
		}
	}()

	builder := feed.NewBuilder(file, cfg.DBPath,
		source.Deps{Transports: pool, Log: log},
		target.Deps{Summarizer: initOpenAISummarizer(ctx, cfg.OpenAIAPIKey, log), Log: log},
		storages, log)

	// Ledgers live as long as the process so the memory one survives
	// scheduled runs; browsers are released after each run.
	runner := feed.NewRunner(builder, file.Feeds, cfg.DelayAfterFeed, log,
		feed.WithCleanup(pool.Close))

	if cfg.Schedule == "" {
		if err = runner.Run(ctx); err != nil {
			log.ErrorContext(ctx, "Failed to run feeds",
				"error", err,
				"durationSeconds", time.Since(start).Seconds())

			return 1
		}

		log.InfoContext(ctx, "Feeds are processed",
			"durationSeconds", time.Since(start).Seconds())

		return 0
	}

	sched := scheduler.New(ctx, cfg.Schedule, runner, cfg.RunTimeout, log)
	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", cfg.Schedule)

		return 1
	}
	log.InfoContext(ctx, "Scheduler is started",
		"spec", cfg.Schedule,
		"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())

	<-ctx.Done()
	log.InfoContext(ctx, "Shutdown signal is received",
		"uptimeSeconds", time.Since(start).Seconds())

	sched.Stop()
	log.InfoContext(ctx, "Scheduler is stopped",
		"uptimeSeconds", time.Since(start).Seconds())

	return 0
}

// initLogger writes colored text to the console and, with LOG_PATH set, JSON
// lines to the log file as well.
func initLogger(cfg config.Config) (*slog.Logger, func(), error) {
	console := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.DateTime,
	})

	if cfg.LogPath == "" {
		return slog.New(console), func() {}, nil
	}

	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // Path comes from LOG_PATH
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logFile := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: cfg.LogLevel})
	log := slog.New(slog.NewMultiHandler(console, logFile))

	return log, func() { closeQuietly(f) }, nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
}

func initOpenAISummarizer(ctx context.Context, apiKey string, log *slog.Logger) summarizer.Summarizer {
	if apiKey == "" {
		log.InfoContext(ctx, "OPENAI_API_KEY is missing so long texts will be cut",
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	s, err := summarizer.NewOpenAISummarizer(apiKey)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create OpenAI summarizer so long texts will be cut",
			"error", err,
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	log.InfoContext(ctx, "OpenAI summarizer is initialized",
		"provider", "openai")

	return summarizer.NewCached(s)
}
