package target

import (
	"context"
	"log/slog"
	"social2tg/internal/config"
	"social2tg/internal/domain"
)

// Dummy logs what it would publish and always succeeds.
type Dummy struct {
	name     string
	noFooter bool
	log      *slog.Logger
}

func NewDummy(name string, cfg config.TargetConfig, deps Deps) *Dummy {
	return &Dummy{name: name, noFooter: cfg.NoFooter, log: deps.Log}
}

func (d *Dummy) Name() string {
	return d.name
}

func (d *Dummy) Publish(ctx context.Context, update domain.Update) (bool, error) {
	p := update.ToPublishable()

	footer := p.Footer
	if d.noFooter {
		footer = ""
	}

	d.log.InfoContext(ctx, "Update is published",
		"target", d.name,
		"update", update.String(),
		"text", p.Text,
		"footer", footer,
		"media", len(p.Media))

	return true, nil
}
