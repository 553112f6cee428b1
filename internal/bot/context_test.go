package bot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"jinoca/internal/domain"
)

type fakeHistory struct {
	turns      []domain.Turn
	err        error
	lastChat   string
	lastLimit  int
	lastExcl   string
	recorded   []string
	recordFrom []bool
}

func (f *fakeHistory) Record(ctx context.Context, messageID, chatID string, fromMe bool, content string, at time.Time) error {
	f.recorded = append(f.recorded, content)
	f.recordFrom = append(f.recordFrom, fromMe)
	return nil
}

func (f *fakeHistory) Recent(ctx context.Context, chatID string, limit int, excludeID string) ([]domain.Turn, error) {
	f.lastChat = chatID
	f.lastLimit = limit
	f.lastExcl = excludeID
	return f.turns, f.err
}

func (f *fakeHistory) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testMessage(id, content string) domain.InboundMessage {
	return domain.InboundMessage{
		ID:        id,
		ChatID:    "5511999999999@s.whatsapp.net",
		SenderID:  "5511999999999@s.whatsapp.net",
		Content:   content,
		Timestamp: time.Now(),
	}
}

func TestContextBuilder_SystemFirstCurrentLast(t *testing.T) {
	hist := &fakeHistory{turns: []domain.Turn{
		{Role: domain.RoleUser, Content: "oi"},
		{Role: domain.RoleAssistant, Content: "oi, fofo 😏"},
	}}
	b := NewContextBuilder(ContextBuilderConfig{History: hist, Window: 10, Logger: testLogger()})

	turns := b.Build(context.Background(), testMessage("m3", "e aí?"))

	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	if turns[0].Role != domain.RoleSystem {
		t.Fatalf("turn 0 must be system, got %s", turns[0].Role)
	}
	for i, turn := range turns[1:] {
		if turn.Role == domain.RoleSystem {
			t.Fatalf("turn %d must not be system", i+1)
		}
	}
	last := turns[len(turns)-1]
	if last.Role != domain.RoleUser || last.Content != "e aí?" {
		t.Fatalf("last turn must be the current message, got %+v", last)
	}
}

func TestContextBuilder_PassesWindowAndExclusion(t *testing.T) {
	hist := &fakeHistory{}
	b := NewContextBuilder(ContextBuilderConfig{History: hist, Window: 7, Logger: testLogger()})

	msg := testMessage("msg-42", "oi")
	b.Build(context.Background(), msg)

	if hist.lastChat != msg.ChatID {
		t.Fatalf("expected chat %s, got %s", msg.ChatID, hist.lastChat)
	}
	if hist.lastLimit != 7 {
		t.Fatalf("expected limit 7, got %d", hist.lastLimit)
	}
	if hist.lastExcl != "msg-42" {
		t.Fatalf("expected exclusion of msg-42, got %s", hist.lastExcl)
	}
}

func TestContextBuilder_ZeroWindow(t *testing.T) {
	hist := &fakeHistory{turns: []domain.Turn{{Role: domain.RoleUser, Content: "should not appear"}}}
	b := NewContextBuilder(ContextBuilderConfig{History: hist, Window: 0, Logger: testLogger()})

	turns := b.Build(context.Background(), testMessage("m1", "oi"))

	if len(turns) != 2 {
		t.Fatalf("window 0 must yield system + current only, got %d turns", len(turns))
	}
	if hist.lastChat != "" {
		t.Fatal("history must not be queried when window is 0")
	}
}

func TestContextBuilder_HistoryFailureDegrades(t *testing.T) {
	hist := &fakeHistory{err: errors.New("db locked")}
	b := NewContextBuilder(ContextBuilderConfig{History: hist, Window: 10, Logger: testLogger()})

	turns := b.Build(context.Background(), testMessage("m1", "oi"))

	if len(turns) != 2 {
		t.Fatalf("failed history lookup must degrade to system + current, got %d turns", len(turns))
	}
}

func TestContextBuilder_NilHistory(t *testing.T) {
	b := NewContextBuilder(ContextBuilderConfig{History: nil, Window: 10, Logger: testLogger()})

	turns := b.Build(context.Background(), testMessage("m1", "oi"))

	if len(turns) != 2 {
		t.Fatalf("expected system + current, got %d turns", len(turns))
	}
}
