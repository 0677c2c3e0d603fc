package storage

import (
	"context"
	"social2tg/internal/domain"
	"sync"
	"time"
)

// Memory keeps records for the process lifetime only.
type Memory struct {
	mu        sync.Mutex
	published []domain.Record
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) FindPublished(_ context.Context, update domain.Update, feed string) (domain.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.published {
		if r.UpdateID == update.Identifier && r.Feed == feed {
			return r, true, nil
		}
	}

	return domain.Record{}, false, nil
}

func (m *Memory) RememberPublished(_ context.Context, update domain.Update, feed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published = append(m.published, domain.Record{
		UpdateID: update.Identifier,
		Feed:     feed,
		At:       m.now().UTC(),
	})

	return nil
}

func (m *Memory) Close() error {
	return nil
}
