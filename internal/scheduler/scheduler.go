package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	defaultRunTimeout     = time.Hour
)

// Job is one full pass over all feeds.
type Job interface {
	Run(ctx context.Context) error
}

// Scheduler repeats the job on a cron spec. A run that is still going when
// the next one is due makes the next one skip, so runs never overlap.
type Scheduler struct {
	ctx     context.Context
	cron    *cron.Cron
	spec    string
	job     Job
	timeout time.Duration
	log     *slog.Logger
}

func New(ctx context.Context, spec string, job Job, timeout time.Duration, log *slog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}

	logger := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		ctx:     ctx,
		cron:    c,
		spec:    spec,
		job:     job,
		timeout: timeout,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runJob); err != nil {
		return fmt.Errorf("add job %q: %w", s.spec, err)
	}

	s.cron.Start()

	return nil
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	start := time.Now()

	if err := s.job.Run(ctx); err != nil {
		s.log.ErrorContext(ctx, "Failed to run feeds",
			"error", err,
			"spec", s.spec,
			"durationSeconds", time.Since(start).Seconds())
		return
	}

	s.log.InfoContext(ctx, "Scheduled run is finished",
		"spec", s.spec,
		"durationSeconds", time.Since(start).Seconds())
}

// cronLogger sends cron's own messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("Cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("Cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
