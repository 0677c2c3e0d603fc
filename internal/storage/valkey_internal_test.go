package storage

import (
	"context"
	"errors"
	"log/slog"
	"social2tg/internal/domain"
	"strings"
	"sync"
	"testing"

	"github.com/valkey-io/valkey-go"
	"github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"
)

// hashServer answers HGET and HSET from in-memory hashes.
type hashServer struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
}

func (h *hashServer) do(_ context.Context, cmd valkey.Completed) valkey.ValkeyResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	args := cmd.Commands()

	switch strings.ToUpper(args[0]) {
	case "HGET":
		value, ok := h.hashes[args[1]][args[2]]
		if !ok {
			return mock.Result(mock.ValkeyNil())
		}

		return mock.Result(mock.ValkeyString(value))
	case "HSET":
		if h.hashes[args[1]] == nil {
			h.hashes[args[1]] = make(map[string]string)
		}

		added := int64(0)
		for i := 2; i+1 < len(args); i += 2 {
			if _, ok := h.hashes[args[1]][args[i]]; !ok {
				added++
			}
			h.hashes[args[1]][args[i]] = args[i+1]
		}

		return mock.Result(mock.ValkeyInt64(added))
	}

	return mock.ErrorResult(errors.New("unexpected command " + args[0]))
}

func TestValkeyStorage(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	server := &hashServer{hashes: make(map[string]map[string]string)}

	client.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(server.do).AnyTimes()

	testStorageSemantics(t, newValkey(client, slog.Default()))

	if _, ok := server.hashes["social2tg:published:demo"]["a"]; !ok {
		t.Fatalf("expected the record in the feed hash, got %v", server.hashes)
	}
}

func TestValkeyStorageErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	down := errors.New("connection refused")
	ctx := context.Background()
	u := domain.Update{Identifier: "a"}

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "social2tg:published:demo", "a")).
		Return(mock.ErrorResult(down))
	client.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(down))

	s := newValkey(client, slog.Default())

	if _, ok, err := s.FindPublished(ctx, u, "demo"); !errors.Is(err, down) || ok {
		t.Fatalf("expected find to fail, got ok=%v err=%v", ok, err)
	}

	if err := s.RememberPublished(ctx, u, "demo"); !errors.Is(err, down) {
		t.Fatalf("expected remember to fail, got %v", err)
	}
}
