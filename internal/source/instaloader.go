package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"social2tg/internal/config"
	"social2tg/internal/domain"
	"social2tg/internal/transport"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultInstagramAPIURL = "https://i.instagram.com"
	instagramWebAppID      = "936619743392459"
)

// Instaloader reads the web profile JSON that Instagram serves to its own web
// client, the same endpoint instaloader uses.
type Instaloader struct {
	name      string
	username  string
	apiURL    *url.URL
	sessionID string
	limit     int
	fetcher   *fetcher
}

func NewInstaloader(
	name string,
	cfg config.SourceConfig,
	t transport.Transport,
	log *slog.Logger,
) (*Instaloader, error) {
	if cfg.ID == "" {
		return nil, errors.New("instaloader source needs an id")
	}

	rawAPI := cfg.URL
	if rawAPI == "" {
		rawAPI = defaultInstagramAPIURL
	}

	apiURL, err := url.Parse(rawAPI)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}

	return &Instaloader{
		name:      name,
		username:  strings.TrimPrefix(cfg.ID, "@"),
		apiURL:    apiURL,
		sessionID: cfg.SessionID,
		limit:     cfg.Limit,
		fetcher:   newFetcher(t, cfg.WaitBetween, log),
	}, nil
}

func (i *Instaloader) Name() string {
	return i.name
}

func (i *Instaloader) profileInfoURL() string {
	u := i.apiURL.JoinPath("api", "v1", "users", "web_profile_info/")
	u.RawQuery = url.Values{"username": {i.username}}.Encode()

	return u.String()
}

func (i *Instaloader) Updates(ctx context.Context) ([]domain.Update, error) {
	header := http.Header{}
	header.Set("X-IG-App-ID", instagramWebAppID)
	header.Set("Accept", "application/json")
	if i.sessionID != "" {
		header.Set("Cookie", "sessionid="+i.sessionID)
	}

	body, err := i.fetcher.fetch(ctx, i.profileInfoURL(), header)
	if err != nil {
		return nil, fmt.Errorf("fetch profile info: %w", err)
	}

	return parseProfileInfo(body, i.limit)
}

// parseProfileInfo turns the timeline of a web_profile_info response into
// updates, oldest first.
func parseProfileInfo(body []byte, limit int) ([]domain.Update, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("profile info is not json")
	}

	user := gjson.GetBytes(body, "data.user")
	if !user.Exists() {
		return nil, errors.New("profile info has no user")
	}

	edges := user.Get("edge_owner_to_timeline_media.edges")
	if !edges.IsArray() {
		return nil, errors.New("profile info has no timeline")
	}

	username := user.Get("username").String()

	var updates []domain.Update
	edges.ForEach(func(_, edge gjson.Result) bool {
		if limit > 0 && len(updates) >= limit {
			return false
		}

		node := edge.Get("node")
		shortCode := node.Get("shortcode").String()
		if shortCode == "" {
			return true
		}

		author := username
		if owner := node.Get("owner.username").String(); owner != "" {
			author = owner
		}

		var date time.Time
		if ts := node.Get("taken_at_timestamp").Int(); ts > 0 {
			date = time.Unix(ts, 0).UTC()
		}

		updates = append(updates, domain.Update{
			Identifier: shortCode,
			URL:        instagramPostURL(shortCode),
			Author:     "@" + author,
			AuthorURL:  instagramProfileURL(author),
			Date:       date,
			Text:       node.Get("edge_media_to_caption.edges.0.node.text").String(),
			Media:      instagramNodeMedia(node),
			OrigURL:    instagramPostURL(shortCode),
			Type:       domain.UpdateTypePost,
		})

		return true
	})

	slices.Reverse(updates)

	return updates, nil
}

func instagramNodeMedia(node gjson.Result) []domain.Media {
	children := node.Get("edge_sidecar_to_children.edges.#.node")
	if children.IsArray() && len(children.Array()) > 0 {
		var media []domain.Media
		for _, child := range children.Array() {
			if m, ok := instagramSingleMedia(child); ok {
				media = append(media, m)
			}
		}

		return media
	}

	if m, ok := instagramSingleMedia(node); ok {
		return []domain.Media{m}
	}

	return nil
}

func instagramSingleMedia(node gjson.Result) (domain.Media, bool) {
	if node.Get("is_video").Bool() {
		if src := node.Get("video_url").String(); src != "" {
			return domain.Media{URL: src, Kind: domain.MediaKindVideo}, true
		}
	}

	if src := node.Get("display_url").String(); src != "" {
		return domain.Media{URL: src, Kind: domain.MediaKindImage}, true
	}

	return domain.Media{}, false
}
