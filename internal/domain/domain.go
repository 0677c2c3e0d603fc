package domain

import (
	"fmt"
	"social2tg/internal/markup"
	"strings"
	"time"
)

type UpdateType string

const (
	UpdateTypePost  UpdateType = "post"
	UpdateTypeStory UpdateType = "story"
)

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

type Media struct {
	URL  string
	Kind MediaKind
	Path string
}

// Update is one piece of scraped content. Sources build it eagerly and it is
// not changed afterwards.
type Update struct {
	// Identifier stays the same across repeated scrapes of the same post.
	Identifier string
	URL        string
	Author     string
	AuthorURL  string
	Date       time.Time
	Text       string
	Media      []Media
	OrigURL    string
	Type       UpdateType
}

// Publishable is an Update prepared for delivery: the footer is kept apart from
// the text so targets can trim the text without touching it.
type Publishable struct {
	Text   string
	Footer string
	Media  []Media
}

type Record struct {
	UpdateID string
	Feed     string
	At       time.Time
}

func (u Update) String() string {
	kind := u.Type
	if kind == "" {
		kind = UpdateTypePost
	}

	return fmt.Sprintf("%s(%s)", kind, u.Identifier)
}

func (u Update) ToPublishable() Publishable {
	media := u.Media
	if media == nil {
		media = []Media{}
	}

	return Publishable{
		Text:   strings.TrimSpace(u.Text),
		Footer: u.Footer(),
		Media:  media,
	}
}

func (u Update) Footer() string {
	kind := string(u.Type)
	if kind == "" {
		kind = string(UpdateTypePost)
	}
	kind = strings.ToUpper(kind[:1]) + kind[1:]

	start := kind
	if u.OrigURL != "" {
		start = fmt.Sprintf(`<a href="%s">%s</a>`, markup.EscapeHTML(u.OrigURL), kind)
	}

	author := markup.EscapeHTML(u.Author)
	if u.AuthorURL != "" {
		author = fmt.Sprintf(`<a href="%s">%s</a>`, markup.EscapeHTML(u.AuthorURL), author)
	} else {
		author = "<code>" + author + "</code>"
	}

	return fmt.Sprintf("\n\n<i>%s by %s</i>", start, author)
}
