package ratelimiter

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultCooldown   = 2 * time.Second
	retryAfterPadding = time.Second
)

// RetryAfterFunc reports the wait requested by the platform when err is a
// rate-limit error.
type RetryAfterFunc func(err error) (time.Duration, bool)

type Sleeper func(ctx context.Context, d time.Duration) error

type Option func(*RateLimiter)

func WithCooldown(d time.Duration) Option {
	return func(rl *RateLimiter) {
		rl.cooldown = d
	}
}

func WithSleeper(s Sleeper) Option {
	return func(rl *RateLimiter) {
		rl.sleep = s
	}
}

// RateLimiter keeps publishing under the platform limits: a throttled call is
// repeated exactly once after the requested wait, and every publish attempt
// is followed by a fixed cooldown.
type RateLimiter struct {
	cooldown   time.Duration
	retryAfter RetryAfterFunc
	sleep      Sleeper
	log        *slog.Logger
}

func New(retryAfter RetryAfterFunc, log *slog.Logger, opts ...Option) *RateLimiter {
	rl := &RateLimiter{
		cooldown:   DefaultCooldown,
		retryAfter: retryAfter,
		sleep:      Sleep,
		log:        log,
	}

	for _, opt := range opts {
		opt(rl)
	}

	return rl
}

// Do runs action and, if the platform asks to wait, sleeps the requested time
// plus one second and runs it once more. The second error is returned as is.
func (rl *RateLimiter) Do(ctx context.Context, action func(ctx context.Context) error) error {
	err := action(ctx)
	if err == nil {
		return nil
	}

	wait, ok := rl.retryAfter(err)
	if !ok {
		return err
	}

	delay := getDelay(wait)
	rl.log.InfoContext(ctx, "Flood limit detected, waiting",
		"retryAfter", wait,
		"delay", delay)

	if sleepErr := rl.sleep(ctx, delay); sleepErr != nil {
		return sleepErr
	}

	return action(ctx)
}

// Cooldown waits the fixed pause that follows every publish attempt.
func (rl *RateLimiter) Cooldown(ctx context.Context) {
	if rl.cooldown <= 0 {
		return
	}

	if err := rl.sleep(ctx, rl.cooldown); err != nil {
		rl.log.DebugContext(ctx, "Cooldown is interrupted",
			"error", err)
	}
}

func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func getDelay(retryAfter time.Duration) time.Duration {
	return max(retryAfter, 0) + retryAfterPadding
}
