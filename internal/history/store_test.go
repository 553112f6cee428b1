package history

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jinoca/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"), logger)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

const testChat = "5511999999999@s.whatsapp.net"

func TestRecordAndRecent_OldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, "m1", testChat, false, "primeira", time.Now())
	s.Record(ctx, "m2", testChat, true, "resposta", time.Now())
	s.Record(ctx, "m3", testChat, false, "segunda", time.Now())

	turns, err := s.Recent(ctx, testChat, 10, "none")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Content != "primeira" || turns[2].Content != "segunda" {
		t.Fatalf("turns must be oldest first, got %+v", turns)
	}
	if turns[1].Role != domain.RoleAssistant {
		t.Fatalf("own messages must map to assistant, got %s", turns[1].Role)
	}
	if turns[0].Role != domain.RoleUser {
		t.Fatalf("peer messages must map to user, got %s", turns[0].Role)
	}
}

func TestRecent_ExcludesCurrentMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, "m1", testChat, false, "antiga", time.Now())
	s.Record(ctx, "m2", testChat, false, "atual", time.Now())

	turns, err := s.Recent(ctx, testChat, 10, "m2")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "antiga" {
		t.Fatalf("the current message must be excluded, got %+v", turns)
	}
}

func TestRecent_RespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		s.Record(ctx, fmt.Sprintf("m%d", i), testChat, false, fmt.Sprintf("msg %d", i), time.Now())
	}

	turns, err := s.Recent(ctx, testChat, 10, "none")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(turns))
	}
	// The window is the most recent 10, oldest first.
	if turns[0].Content != "msg 10" || turns[9].Content != "msg 19" {
		t.Fatalf("unexpected window: first=%q last=%q", turns[0].Content, turns[9].Content)
	}
}

func TestRecent_IsolatesChats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, "m1", testChat, false, "minha", time.Now())
	s.Record(ctx, "m2", "other@s.whatsapp.net", false, "alheia", time.Now())

	turns, err := s.Recent(ctx, testChat, 10, "none")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "minha" {
		t.Fatalf("history must be per chat, got %+v", turns)
	}
}

func TestRecent_ZeroLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, "m1", testChat, false, "oi", time.Now())

	turns, err := s.Recent(ctx, testChat, 0, "none")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("limit 0 must return nothing, got %+v", turns)
	}
}

func TestRecord_SkipsEmptyContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, "m1", testChat, false, "", time.Now())

	turns, err := s.Recent(ctx, testChat, 10, "none")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("empty content must not be recorded, got %+v", turns)
	}
}

func TestRecord_PrunesOldRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < keepPerChat+25; i++ {
		s.Record(ctx, fmt.Sprintf("m%d", i), testChat, false, fmt.Sprintf("msg %d", i), time.Now())
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_jid = ?`, testChat).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count > keepPerChat {
		t.Fatalf("expected at most %d rows after pruning, got %d", keepPerChat, count)
	}
}
