package target

import (
	"context"
	"log/slog"
	"social2tg/internal/domain"
	"social2tg/internal/markup"
	"social2tg/internal/summarizer"
	"strings"
)

const (
	captionLimit = 1024
	messageLimit = 4096
	ellipsis     = "..."
)

// Limit is the Telegram length limit for a message with or without media.
func Limit(withMedia bool) int {
	if withMedia {
		return captionLimit
	}

	return messageLimit
}

// Fit shortens text so that text and footer together stay within limit. The
// footer is never cut: the text is trimmed to limit-len(footer)-3 characters
// and an ellipsis is appended. Lengths are counted in characters of the text
// before HTML escaping, which is how Telegram counts them.
func Fit(text, footer string, limit int) string {
	textLen, footerLen := markup.Len(text), markup.Len(footer)
	if textLen+footerLen <= limit {
		return text
	}

	keep := max(limit-footerLen-len(ellipsis), 0)

	return markup.Cut(text, keep) + ellipsis
}

// formatter turns an update into Telegram HTML under a length limit.
type formatter struct {
	noFooter   bool
	summarizer summarizer.Summarizer
	log        *slog.Logger
}

func newFormatter(noFooter bool, s summarizer.Summarizer, log *slog.Logger) *formatter {
	return &formatter{
		noFooter:   noFooter,
		summarizer: s,
		log:        log,
	}
}

// format returns the HTML body for the update and its media.
func (f *formatter) format(ctx context.Context, update domain.Update, limit int) (string, []domain.Media) {
	p := update.ToPublishable()

	footer := p.Footer
	if f.noFooter {
		footer = ""
	}

	text := p.Text
	if f.summarizer != nil && markup.Len(text)+markup.Len(footer) > limit {
		text = f.summarize(ctx, update, text, limit-markup.Len(footer))
	}

	text = Fit(text, footer, limit)

	return markup.Linkify(text) + footer, p.Media
}

func (f *formatter) summarize(ctx context.Context, update domain.Update, text string, budget int) string {
	if budget <= len(ellipsis) {
		return text
	}

	summary, err := f.summarizer.Summarize(ctx, summarizer.Input{
		Text:      text,
		SourceURL: update.OrigURL,
		MaxChars:  budget,
	})
	if err != nil {
		f.log.WarnContext(ctx, "Failed to summarize text, it will be cut",
			"update", update.String(),
			"error", err)

		return text
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return text
	}

	return summary
}
