package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"social2tg/internal/config"
	"social2tg/internal/domain"
	"social2tg/internal/transport"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// RSSBridge reads an account through any RSS or Atom rendition of it, such
// as an RSS-Bridge Instagram feed.
type RSSBridge struct {
	name    string
	url     string
	limit   int
	parser  *gofeed.Parser
	fetcher *fetcher
	log     *slog.Logger
}

func NewRSSBridge(
	name string,
	cfg config.SourceConfig,
	t transport.Transport,
	log *slog.Logger,
) (*RSSBridge, error) {
	if cfg.URL == "" {
		return nil, errors.New("rssbridge source needs a url")
	}

	return &RSSBridge{
		name:    name,
		url:     cfg.URL,
		limit:   cfg.Limit,
		parser:  gofeed.NewParser(),
		fetcher: newFetcher(t, cfg.WaitBetween, log),
		log:     log,
	}, nil
}

func (r *RSSBridge) Name() string {
	return r.name
}

func (r *RSSBridge) Updates(ctx context.Context) ([]domain.Update, error) {
	body, err := r.fetcher.fetch(ctx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	parsed, err := r.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := parsed.Items
	if r.limit > 0 && len(items) > r.limit {
		items = items[:r.limit]
	}

	updates := make([]domain.Update, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		update, ok := r.toUpdate(parsed, item)
		if !ok {
			r.log.WarnContext(ctx, "Skipping feed item without identifier",
				"source", r.name,
				"title", item.Title)
			continue
		}

		updates = append(updates, update)
	}

	sortOldestFirst(updates)

	return updates, nil
}

func (r *RSSBridge) toUpdate(parsed *gofeed.Feed, item *gofeed.Item) (domain.Update, bool) {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}
	if id == "" {
		return domain.Update{}, false
	}

	author := strings.TrimSpace(parsed.Title)
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		author = strings.TrimSpace(item.Author.Name)
	} else if len(item.Authors) > 0 && item.Authors[0] != nil && item.Authors[0].Name != "" {
		author = strings.TrimSpace(item.Authors[0].Name)
	}

	html := item.Content
	if strings.TrimSpace(html) == "" {
		html = item.Description
	}
	text, media := parseItemHTML(html)
	media = mergeMedia(enclosureMedia(item.Enclosures), media)

	if text == "" {
		text = strings.TrimSpace(item.Title)
	}

	var date time.Time
	switch {
	case item.PublishedParsed != nil:
		date = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		date = *item.UpdatedParsed
	}

	return domain.Update{
		Identifier: id,
		URL:        item.Link,
		Author:     author,
		AuthorURL:  parsed.Link,
		Date:       date,
		Text:       text,
		Media:      media,
		OrigURL:    item.Link,
		Type:       domain.UpdateTypePost,
	}, true
}

// sortOldestFirst orders by date when every update has one. Otherwise the
// feed order is taken as newest first and reversed.
func sortOldestFirst(updates []domain.Update) {
	for _, u := range updates {
		if u.Date.IsZero() {
			slices.Reverse(updates)
			return
		}
	}

	slices.Reverse(updates)
	slices.SortStableFunc(updates, func(a, b domain.Update) int {
		return a.Date.Compare(b.Date)
	})
}

func parseItemHTML(html string) (string, []domain.Media) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html), nil
	}

	var media []domain.Media
	doc.Find("img, video").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "img" {
			if src, ok := s.Attr("src"); ok && src != "" {
				media = append(media, domain.Media{URL: src, Kind: domain.MediaKindImage})
			}
			return
		}

		src, ok := s.Attr("src")
		if !ok || src == "" {
			src, ok = s.Find("source").First().Attr("src")
		}
		if ok && src != "" {
			media = append(media, domain.Media{URL: src, Kind: domain.MediaKindVideo})
		}
	})

	doc.Find("br").ReplaceWithHtml("\n")
	text := strings.TrimSpace(doc.Text())

	return text, media
}

func enclosureMedia(enclosures []*gofeed.Enclosure) []domain.Media {
	var media []domain.Media
	for _, e := range enclosures {
		if e == nil || e.URL == "" {
			continue
		}

		switch {
		case strings.HasPrefix(e.Type, "image/"):
			media = append(media, domain.Media{URL: e.URL, Kind: domain.MediaKindImage})
		case strings.HasPrefix(e.Type, "video/"):
			media = append(media, domain.Media{URL: e.URL, Kind: domain.MediaKindVideo})
		}
	}

	return media
}

func mergeMedia(lists ...[]domain.Media) []domain.Media {
	var merged []domain.Media
	seen := make(map[string]struct{})

	for _, list := range lists {
		for _, m := range list {
			if _, ok := seen[m.URL]; ok {
				continue
			}

			seen[m.URL] = struct{}{}
			merged = append(merged, m)
		}
	}

	return merged
}
