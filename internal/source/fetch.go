package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"social2tg/internal/ratelimiter"
	"social2tg/internal/transport"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	fetchAttempts    = 4
	fetchBackoffUnit = 4 * time.Second
)

// fetcher wraps a transport with the retry policy shared by all sources:
// four attempts with a linearly growing pause, then an optional pause after
// every successful fetch.
type fetcher struct {
	transport   transport.Transport
	backoffUnit time.Duration
	waitBetween time.Duration
	timer       retry.Timer
	log         *slog.Logger
}

func newFetcher(t transport.Transport, waitBetween time.Duration, log *slog.Logger) *fetcher {
	return &fetcher{
		transport:   t,
		backoffUnit: fetchBackoffUnit,
		waitBetween: waitBetween,
		log:         log,
	}
}

func (f *fetcher) fetch(ctx context.Context, url string, header http.Header) ([]byte, error) {
	var body []byte

	opts := []retry.Option{
		retry.Attempts(fetchAttempts),
		retry.DelayType(f.backoff),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			f.log.WarnContext(ctx, "Failed to fetch page",
				"url", url,
				"attempt", n+1,
				"error", err)
		}),
	}
	if f.timer != nil {
		opts = append(opts, retry.WithTimer(f.timer))
	}

	err := retry.Do(
		func() error {
			b, err := f.transport.Fetch(ctx, url, header)
			if err != nil {
				return err
			}

			body = b

			return nil
		},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s after %d attempts: %w", url, fetchAttempts, err)
	}

	f.pause(ctx)

	return body, nil
}

// backoff waits one unit after the first failed attempt, two after the
// second and so on. The retry library counts attempts from 1.
func (f *fetcher) backoff(n uint, _ error, _ *retry.Config) time.Duration {
	return time.Duration(n) * f.backoffUnit
}

// settle scrolls the page fetched last and returns it again. Transports that
// cannot scroll return nil and the caller keeps what it has.
func (f *fetcher) settle(ctx context.Context) ([]byte, error) {
	body, err := f.transport.Settle(ctx)
	if err != nil {
		return nil, fmt.Errorf("settle page: %w", err)
	}

	return body, nil
}

func (f *fetcher) pause(ctx context.Context) {
	if f.waitBetween <= 0 {
		return
	}

	if err := ratelimiter.Sleep(ctx, f.waitBetween); err != nil {
		f.log.DebugContext(ctx, "Pause between fetches is interrupted",
			"error", err)
	}
}
