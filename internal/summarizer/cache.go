package summarizer

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	cacheMaxEntries = 1024
	cacheTTL        = 24 * time.Hour
)

// Cached remembers summaries so one update published to several targets, or
// seen again on the next scheduled run, is summarized once.
type Cached struct {
	next  Summarizer
	cache *summaryCache
	now   func() time.Time
}

func NewCached(next Summarizer) *Cached {
	return &Cached{
		next:  next,
		cache: newSummaryCache(cacheMaxEntries),
		now:   time.Now,
	}
}

func (c *Cached) Summarize(ctx context.Context, input Input) (string, error) {
	now := c.now()
	key := cacheKey(input)

	if summary, ok := c.cache.get(key, now); ok {
		return summary, nil
	}

	summary, err := c.next.Summarize(ctx, input)
	if err != nil {
		return "", err
	}

	c.cache.set(key, summary, now.Add(cacheTTL), now)

	return summary, nil
}

func cacheKey(input Input) string {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return ""
	}

	hash := sha256.Sum256([]byte(text))

	return strconv.Itoa(input.MaxChars) + "|" + hex.EncodeToString(hash[:])
}

type summaryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
}

type summaryCacheEntry struct {
	key       string
	summary   string
	expiresAt time.Time
}

func newSummaryCache(maxEntries int) *summaryCache {
	if maxEntries <= 0 {
		return nil
	}

	return &summaryCache{
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (c *summaryCache) get(key string, now time.Time) (string, bool) {
	if c == nil || key == "" {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return "", false
	}

	entry := elem.Value.(*summaryCacheEntry) //nolint:forcetypeassert // Only entries are stored.

	if now.After(entry.expiresAt) {
		c.removeElement(elem)

		return "", false
	}

	c.order.MoveToFront(elem)

	return entry.summary, true
}

func (c *summaryCache) set(key string, summary string, expiresAt time.Time, now time.Time) {
	if c == nil || key == "" || summary == "" || !expiresAt.After(now) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*summaryCacheEntry) //nolint:forcetypeassert // Only entries are stored.
		entry.summary = summary
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)

		return
	}

	c.entries[key] = c.order.PushFront(&summaryCacheEntry{
		key:       key,
		summary:   summary,
		expiresAt: expiresAt,
	})

	c.evictExpiredLocked(now)
	c.enforceSizeLimitLocked()
}

func (c *summaryCache) evictExpiredLocked(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if entry := elem.Value.(*summaryCacheEntry); now.After(entry.expiresAt) { //nolint:forcetypeassert // Only entries are stored.
			c.removeElement(elem)
		}
		elem = prev
	}
}

func (c *summaryCache) enforceSizeLimitLocked() {
	for len(c.entries) > c.maxEntries {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		c.removeElement(elem)
	}
}

func (c *summaryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*summaryCacheEntry) //nolint:forcetypeassert // Only entries are stored.

	delete(c.entries, entry.key)
	c.order.Remove(elem)
}
