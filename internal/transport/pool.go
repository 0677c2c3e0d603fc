package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Options struct {
	Proxy           string
	HTTPTimeout     time.Duration
	BrowserHeadless bool
}

type factory func() (Transport, error)

// Pool owns the process-wide transports. Each kind is created on first use
// and Close releases everything created so far; a later use creates it again.
type Pool struct {
	mu        sync.Mutex
	factories map[string]factory
	created   map[string]Transport
	log       *slog.Logger
}

func NewPool(opts Options, log *slog.Logger) *Pool {
	p := &Pool{
		created: make(map[string]Transport),
		log:     log,
	}

	p.factories = map[string]factory{
		KindHTTP: func() (Transport, error) {
			return NewHTTP(opts.Proxy, opts.HTTPTimeout, log)
		},
		KindBrowser: func() (Transport, error) {
			return NewBrowser(opts.BrowserHeadless, opts.Proxy, log)
		},
	}

	return p
}

// Register replaces or adds a transport kind.
func (p *Pool) Register(kind string, newTransport func() (Transport, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.factories[kind] = newTransport
}

// Get returns a handle for the kind without creating anything yet.
func (p *Pool) Get(kind string) (Transport, error) {
	if kind == "" {
		kind = KindHTTP
	}

	p.mu.Lock()
	_, ok := p.factories[kind]
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return &lazy{pool: p, kind: kind}, nil
}

func (p *Pool) acquire(kind string) (Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.created[kind]; ok {
		return t, nil
	}

	t, err := p.factories[kind]()
	if err != nil {
		return nil, fmt.Errorf("create %s transport: %w", kind, err)
	}

	p.created[kind] = t
	p.log.Debug("Transport is created",
		"kind", kind)

	return t, nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for kind, t := range p.created {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s transport: %w", kind, err))
		}
		delete(p.created, kind)
	}

	return errors.Join(errs...)
}

type lazy struct {
	pool *Pool
	kind string
}

func (l *lazy) Fetch(ctx context.Context, url string, header http.Header) ([]byte, error) {
	t, err := l.pool.acquire(l.kind)
	if err != nil {
		return nil, err
	}

	return t.Fetch(ctx, url, header)
}

func (l *lazy) Settle(ctx context.Context) ([]byte, error) {
	t, err := l.pool.acquire(l.kind)
	if err != nil {
		return nil, err
	}

	return t.Settle(ctx)
}

// Close is a no-op: the pool releases shared transports.
func (l *lazy) Close() error {
	return nil
}
