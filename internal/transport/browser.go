package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	browserNavigateTimeout = 60 * time.Second
	scrollTopPause         = time.Second
	scrollBottomPause      = 2 * time.Second
)

// Browser drives a single headless Chrome tab. Headers passed to Fetch are
// ignored: the browser sends its own.
type Browser struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	log         *slog.Logger
}

func NewBrowser(headless bool, proxy string, log *slog.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserAgent(userAgent),
	)
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()

		return nil, fmt.Errorf("start browser: %w", err)
	}

	log.Info("Browser is started",
		"headless", headless,
		"proxy", proxy != "")

	return &Browser{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		log:         log,
	}, nil
}

func (b *Browser) Fetch(ctx context.Context, pageURL string, _ http.Header) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(b.ctx, browserNavigateTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	b.log.InfoContext(ctx, "Browser navigation starting",
		"url", pageURL)

	var html string
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	return []byte(html), nil
}

func (b *Browser) Settle(ctx context.Context) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(b.ctx, browserNavigateTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	b.log.InfoContext(ctx, "Scrolling up and down in the browser")

	var (
		ok   bool
		html string
	)
	if err := chromedp.Run(runCtx,
		chromedp.Evaluate(`window.scrollTo(0, 0); true`, &ok),
		chromedp.Sleep(scrollTopPause),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); true`, &ok),
		chromedp.Sleep(scrollBottomPause),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}

	return []byte(html), nil
}

func (b *Browser) Close() error {
	b.cancelTab()
	b.cancelAlloc()

	b.log.Info("Browser is stopped")

	return nil
}
