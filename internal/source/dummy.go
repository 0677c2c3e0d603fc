package source

import (
	"context"
	"social2tg/internal/config"
	"social2tg/internal/domain"
)

// Dummy yields fixed fake updates, one per configured id.
type Dummy struct {
	name string
	ids  []string
}

func NewDummy(name string, cfg config.SourceConfig) *Dummy {
	ids := cfg.IDs
	if len(ids) == 0 {
		ids = []string{"1"}
	}

	return &Dummy{name: name, ids: ids}
}

func (d *Dummy) Name() string {
	return d.name
}

func (d *Dummy) Updates(context.Context) ([]domain.Update, error) {
	updates := make([]domain.Update, 0, len(d.ids))
	for _, id := range d.ids {
		updates = append(updates, domain.Update{
			Identifier: id,
			Author:     d.name,
			Text:       "Lorem ipsum " + id,
			Type:       domain.UpdateTypePost,
		})
	}

	return updates, nil
}
