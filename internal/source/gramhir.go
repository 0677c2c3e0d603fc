package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"social2tg/internal/config"
	"social2tg/internal/domain"
	"social2tg/internal/transport"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const defaultGramhirBaseURL = "https://gramhir.com"

var gramhirShortCodeRe = regexp.MustCompile(`let short_code\s*=\s*"([^"]+)"`)

// Gramhir reads an Instagram account through the gramhir.com mirror: the
// profile page lists the posts and every post has a page of its own.
type Gramhir struct {
	name     string
	id       string
	nickname string
	baseURL  *url.URL
	scroll   bool
	limit    int
	fetcher  *fetcher
	log      *slog.Logger
}

func NewGramhir(
	name string,
	cfg config.SourceConfig,
	t transport.Transport,
	log *slog.Logger,
) (*Gramhir, error) {
	if cfg.ID == "" {
		return nil, errors.New("gramhir source needs an id")
	}

	rawBase := cfg.URL
	if rawBase == "" {
		rawBase = defaultGramhirBaseURL
	}

	baseURL, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	nickname, _, _ := strings.Cut(cfg.ID, "/")

	return &Gramhir{
		name:     name,
		id:       cfg.ID,
		nickname: nickname,
		baseURL:  baseURL,
		scroll:   cfg.Scroll,
		limit:    cfg.Limit,
		fetcher:  newFetcher(t, cfg.WaitBetween, log),
		log:      log,
	}, nil
}

func (g *Gramhir) Name() string {
	return g.name
}

func (g *Gramhir) ProfileURL() string {
	return g.baseURL.JoinPath("profile", g.id).String()
}

func (g *Gramhir) Updates(ctx context.Context) ([]domain.Update, error) {
	profile, err := g.fetcher.fetch(ctx, g.ProfileURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	if g.scroll {
		settled, settleErr := g.fetcher.settle(ctx)
		if settleErr != nil {
			g.log.WarnContext(ctx, "Failed to scroll profile page",
				"source", g.name,
				"error", settleErr)
		} else if settled != nil {
			profile = settled
		}
	}

	postURLs, err := g.parseProfile(profile)
	if err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	updates := make([]domain.Update, 0, len(postURLs))
	var errs []error

	for _, postURL := range postURLs {
		body, fetchErr := g.fetcher.fetch(ctx, postURL, nil)
		if fetchErr != nil {
			g.log.ErrorContext(ctx, "Failed to fetch post, skipping it",
				"source", g.name,
				"url", postURL,
				"error", fetchErr)
			errs = append(errs, fetchErr)
			continue
		}

		update, parseErr := g.parsePost(postURL, body)
		if parseErr != nil {
			g.log.ErrorContext(ctx, "Failed to parse post, skipping it",
				"source", g.name,
				"url", postURL,
				"error", parseErr)
			errs = append(errs, fmt.Errorf("parse post %s: %w", postURL, parseErr))
			continue
		}

		updates = append(updates, update)
	}

	return updates, errors.Join(errs...)
}

// parseProfile returns the post page URLs oldest first. With a limit only the
// newest posts are kept.
func (g *Gramhir) parseProfile(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var urls []string
	doc.Find("div.photo").Each(func(_ int, photo *goquery.Selection) {
		href, ok := photo.Find("a").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		ref, parseErr := url.Parse(strings.TrimSpace(href))
		if parseErr != nil {
			return
		}

		urls = append(urls, g.baseURL.ResolveReference(ref).String())
	})

	if g.limit > 0 && len(urls) > g.limit {
		urls = urls[:g.limit]
	}

	slices.Reverse(urls)

	return urls, nil
}

func (g *Gramhir) parsePost(postURL string, body []byte) (domain.Update, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.Update{}, fmt.Errorf("parse html: %w", err)
	}

	m := gramhirShortCodeRe.FindSubmatch(body)
	if m == nil {
		return domain.Update{}, errors.New("short code is missing")
	}
	shortCode := string(m[1])

	author := strings.TrimSpace(doc.Find("div.single-photo-nickname").First().Text())
	if author == "" {
		author = "@" + g.nickname
	}

	return domain.Update{
		Identifier: shortCode,
		URL:        postURL,
		Author:     author,
		AuthorURL:  instagramProfileURL(strings.TrimPrefix(author, "@")),
		Text:       strings.TrimSpace(doc.Find("div.single-photo-description").First().Text()),
		Media:      gramhirMedia(doc),
		OrigURL:    instagramPostURL(shortCode),
		Type:       domain.UpdateTypePost,
	}, nil
}

// gramhirMedia keeps the carousel order; a single post has one image or one
// video.
func gramhirMedia(doc *goquery.Document) []domain.Media {
	var media []domain.Media

	appendItem := func(item *goquery.Selection) {
		if src, ok := item.Find("video source").First().Attr("src"); ok && src != "" {
			media = append(media, domain.Media{URL: src, Kind: domain.MediaKindVideo})
			return
		}

		if src, ok := item.Find("img").First().Attr("src"); ok && src != "" {
			media = append(media, domain.Media{URL: src, Kind: domain.MediaKindImage})
		}
	}

	if carousel := doc.Find("div.owl-carousel").First(); carousel.Length() > 0 {
		carousel.Find("div.item").Each(func(_ int, item *goquery.Selection) {
			appendItem(item)
		})

		return media
	}

	if single := doc.Find("div.single-photo").First(); single.Length() > 0 {
		appendItem(single)
	}

	return media
}

func instagramPostURL(shortCode string) string {
	return "https://www.instagram.com/p/" + shortCode + "/"
}

func instagramProfileURL(nickname string) string {
	return "https://www.instagram.com/" + nickname
}
