package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

	defaultHTTPTimeout = 30 * time.Second
	maxBodyBytes       = 16 << 20
)

type HTTP struct {
	client *http.Client
	log    *slog.Logger
}

func NewHTTP(proxy string, timeout time.Duration, log *slog.Logger) (*HTTP, error) {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // Stdlib default.
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy URL: %w", err)
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	return &HTTP{
		client: &http.Client{Timeout: timeout, Transport: tr},
		log:    log,
	}, nil
}

func (h *HTTP) Fetch(ctx context.Context, pageURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	h.log.InfoContext(ctx, "HTTP request starting",
		"url", pageURL)

	start := time.Now()

	resp, err := h.client.Do(req) //nolint:gosec // URL comes from the feeds file
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			h.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"url", pageURL)
		}
	}()

	h.log.DebugContext(ctx, "HTTP request completed",
		"url", pageURL,
		"statusCode", resp.StatusCode,
		"durationMs", time.Since(start).Milliseconds())

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{URL: pageURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

func (h *HTTP) Settle(context.Context) ([]byte, error) {
	return nil, nil
}

func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()

	return nil
}
