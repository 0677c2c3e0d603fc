package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"social2tg/internal/config"
	"social2tg/internal/domain"
	"strings"
	"testing"
	"time"
)

func testStorageSemantics(t *testing.T, s Storage) {
	t.Helper()

	ctx := context.Background()
	a := domain.Update{Identifier: "a"}
	b := domain.Update{Identifier: "b"}

	if _, ok, err := s.FindPublished(ctx, a, "demo"); err != nil || ok {
		t.Fatalf("expected no record before publishing, got ok=%v err=%v", ok, err)
	}

	before := time.Now().Add(-time.Second)

	if err := s.RememberPublished(ctx, a, "demo"); err != nil {
		t.Fatalf("unexpected remember error: %v", err)
	}

	rec, ok, err := s.FindPublished(ctx, a, "demo")
	if err != nil || !ok {
		t.Fatalf("expected record after publishing, got ok=%v err=%v", ok, err)
	}

	if rec.UpdateID != "a" || rec.Feed != "demo" {
		t.Fatalf("unexpected record: %#v", rec)
	}

	if rec.At.Before(before.Truncate(time.Second)) {
		t.Fatalf("expected record time after %v, got %v", before, rec.At)
	}

	if _, ok, _ = s.FindPublished(ctx, a, "other"); ok {
		t.Fatalf("expected records to be scoped by feed")
	}

	if _, ok, _ = s.FindPublished(ctx, b, "demo"); ok {
		t.Fatalf("expected records to be scoped by update")
	}

	if err = s.RememberPublished(ctx, a, "demo"); err != nil {
		t.Fatalf("expected duplicate record to be tolerated, got %v", err)
	}

	if _, ok, err = s.FindPublished(ctx, a, "demo"); err != nil || !ok {
		t.Fatalf("expected record after duplicate, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryStorage(t *testing.T) {
	testStorageSemantics(t, NewMemory())
}

func TestSQLiteStorage(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.sqlite")

	s, err := OpenSQLite(context.Background(), dbPath, slog.Default())
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer func() {
		if err = s.Close(); err != nil {
			t.Errorf("unexpected close error: %v", err)
		}
	}()

	testStorageSemantics(t, s)
}

func TestSQLiteStorageSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.sqlite")
	u := domain.Update{Identifier: "Cx1"}

	first, err := OpenSQLite(ctx, dbPath, slog.Default())
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	if err = first.RememberPublished(ctx, u, "demo"); err != nil {
		t.Fatalf("unexpected remember error: %v", err)
	}

	if err = first.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	second, err := OpenSQLite(ctx, dbPath, slog.Default())
	if err != nil {
		t.Fatalf("unexpected reopen error: %v", err)
	}
	defer second.Close()

	if _, ok, err := second.FindPublished(ctx, u, "demo"); err != nil || !ok {
		t.Fatalf("expected record to survive reopen, got ok=%v err=%v", ok, err)
	}
}

func TestSQLiteClosesDBWhenInitFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "ledger.sqlite")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	if _, err = initSQLite(context.Background(), db, dbPath, slog.Default()); err == nil {
		t.Fatalf("expected an error for a missing directory")
	}

	if err = db.PingContext(context.Background()); err == nil || !strings.Contains(err.Error(), "database is closed") {
		t.Fatalf("expected the DB to be closed, got %v", err)
	}
}

func TestPostgresClosesDBWhenPingFails(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://social2tg@127.0.0.1:1/ledger?sslmode=disable&connect_timeout=1")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	if _, err = initPostgres(context.Background(), db, slog.Default()); err == nil {
		t.Fatalf("expected an error for an unreachable server")
	}

	if err = db.PingContext(context.Background()); err == nil || !strings.Contains(err.Error(), "database is closed") {
		t.Fatalf("expected the DB to be closed, got %v", err)
	}
}

func TestOpenerSharesStorage(t *testing.T) {
	opener := NewOpener(slog.Default())
	ctx := context.Background()
	cfg := config.StorageConfig{Kind: KindMemory}

	a, err := opener.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := opener.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a != b {
		t.Fatalf("expected the same storage for the same config")
	}

	if err = opener.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	if len(opener.opened) != 0 {
		t.Fatalf("expected opener to forget closed storages")
	}
}

func TestOpenerErrors(t *testing.T) {
	opener := NewOpener(slog.Default())
	ctx := context.Background()

	if _, err := opener.Open(ctx, config.StorageConfig{Kind: "mongo"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}

	if _, err := opener.Open(ctx, config.StorageConfig{Kind: KindSQLite}); err == nil {
		t.Fatalf("expected missing path error")
	}

	if _, err := opener.Open(ctx, config.StorageConfig{Kind: KindPostgres}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func TestGCSObjectName(t *testing.T) {
	name := gcsObjectName("published", "Cx1", "demo")

	if !strings.HasPrefix(name, "published/demo/") || !strings.HasSuffix(name, ".json") {
		t.Fatalf("unexpected object name: %q", name)
	}

	if name != gcsObjectName("published", "Cx1", "demo") {
		t.Fatalf("expected stable object name")
	}

	if name == gcsObjectName("published", "Cx2", "demo") {
		t.Fatalf("expected different updates to get different objects")
	}
}

func TestValkeyKey(t *testing.T) {
	if got := valkeyKey("demo"); got != "social2tg:published:demo" {
		t.Fatalf("unexpected key: %q", got)
	}
}
