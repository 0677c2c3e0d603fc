package storage

import (
	"context"
	"fmt"
	"log/slog"
	"social2tg/internal/domain"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	valkeyKeyPrefix    = "social2tg:published:"
	valkeyWriteTimeout = 5 * time.Second
	valkeyPingTimeout  = 3 * time.Second
)

// Valkey keeps one hash per feed: field is the update id, value the unix
// time it was published.
type Valkey struct {
	client valkey.Client
	now    func() time.Time
	log    *slog.Logger
}

func OpenValkey(ctx context.Context, address string, password string, log *slog.Logger) (*Valkey, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:      []string{address},
		Password:         password,
		ConnWriteTimeout: valkeyWriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, valkeyPingTimeout)
	defer cancel()

	if err = client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("ping valkey: %w", err)
	}

	log.InfoContext(ctx, "Valkey is connected",
		"address", address)

	return newValkey(client, log), nil
}

func newValkey(client valkey.Client, log *slog.Logger) *Valkey {
	return &Valkey{client: client, now: time.Now, log: log}
}

func (v *Valkey) FindPublished(ctx context.Context, update domain.Update, feed string) (domain.Record, bool, error) {
	cmd := v.client.B().Hget().Key(valkeyKey(feed)).Field(update.Identifier).Build()

	at, err := v.client.Do(ctx, cmd).AsInt64()
	if valkey.IsValkeyNil(err) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("hget published: %w", err)
	}

	return domain.Record{
		UpdateID: update.Identifier,
		Feed:     feed,
		At:       time.Unix(at, 0).UTC(),
	}, true, nil
}

func (v *Valkey) RememberPublished(ctx context.Context, update domain.Update, feed string) error {
	at := strconv.FormatInt(v.now().Unix(), 10)
	cmd := v.client.B().Hset().Key(valkeyKey(feed)).FieldValue().FieldValue(update.Identifier, at).Build()

	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("hset published: %w", err)
	}

	return nil
}

func (v *Valkey) Close() error {
	v.client.Close()

	return nil
}

func valkeyKey(feed string) string {
	return valkeyKeyPrefix + feed
}
