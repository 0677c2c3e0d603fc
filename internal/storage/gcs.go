package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"social2tg/internal/domain"
	"strconv"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCS writes one small object per record, named after the feed and a hash
// of the update id.
type GCS struct {
	objects objectStore
	prefix  string
	now     func() time.Time
	log     *slog.Logger
}

// objectStore is the part of a bucket the ledger needs.
type objectStore interface {
	Attrs(ctx context.Context, name string) (*gcs.ObjectAttrs, error)
	Write(ctx context.Context, name string, data []byte, metadata map[string]string) error
	Close() error
}

type gcsRecord struct {
	UpdateID string `json:"update_id"`
	Feed     string `json:"feed"`
	At       int64  `json:"at"`
}

func OpenGCS(ctx context.Context, bucket string, prefix string, log *slog.Logger) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return newGCS(&bucketObjects{client: client, bucket: bucket, log: log}, prefix, log), nil
}

func newGCS(objects objectStore, prefix string, log *slog.Logger) *GCS {
	if prefix == "" {
		prefix = "published"
	}

	return &GCS{objects: objects, prefix: prefix, now: time.Now, log: log}
}

func (g *GCS) FindPublished(ctx context.Context, update domain.Update, feed string) (domain.Record, bool, error) {
	attrs, err := g.objects.Attrs(ctx, gcsObjectName(g.prefix, update.Identifier, feed))
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("get object attrs: %w", err)
	}

	at := attrs.Created
	if raw, ok := attrs.Metadata["at"]; ok {
		if unix, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			at = time.Unix(unix, 0)
		}
	}

	return domain.Record{UpdateID: update.Identifier, Feed: feed, At: at.UTC()}, true, nil
}

func (g *GCS) RememberPublished(ctx context.Context, update domain.Update, feed string) error {
	rec := gcsRecord{UpdateID: update.Identifier, Feed: feed, At: g.now().Unix()}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return g.objects.Write(ctx, gcsObjectName(g.prefix, update.Identifier, feed), data, map[string]string{
		"update_id": rec.UpdateID,
		"feed":      rec.Feed,
		"at":        strconv.FormatInt(rec.At, 10),
	})
}

func (g *GCS) Close() error {
	return g.objects.Close()
}

type bucketObjects struct {
	client *gcs.Client
	bucket string
	log    *slog.Logger
}

func (b *bucketObjects) Attrs(ctx context.Context, name string) (*gcs.ObjectAttrs, error) {
	return b.client.Bucket(b.bucket).Object(name).Attrs(ctx)
}

func (b *bucketObjects) Write(ctx context.Context, name string, data []byte, metadata map[string]string) error {
	w := b.client.Bucket(b.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = metadata

	if _, err := w.Write(data); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			b.log.WarnContext(ctx, "Failed to close writer after error",
				"error", closeErr)
		}

		return fmt.Errorf("write object: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer: %w", err)
	}

	return nil
}

func (b *bucketObjects) Close() error {
	return b.client.Close()
}

func gcsObjectName(prefix string, updateID string, feed string) string {
	hash := sha256.Sum256([]byte(updateID))

	return path.Join(prefix, feed, hex.EncodeToString(hash[:])+".json")
}
