// Package transport provides the page fetching capability used by sources:
// a plain HTTP client and a headless browser, both created on first use and
// released together at the end of a run.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	KindHTTP    = "http"
	KindBrowser = "browser"
)

var ErrUnknownKind = errors.New("unknown transport kind")

// Transport fetches a page and returns its body. Settle scrolls the last
// fetched page so lazy content loads and returns the page again; plain HTTP
// has nothing to settle and returns nil.
type Transport interface {
	Fetch(ctx context.Context, url string, header http.Header) ([]byte, error)
	Settle(ctx context.Context) ([]byte, error)
	Close() error
}

// StatusError is returned when the server answers with a 4xx or 5xx code.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}
