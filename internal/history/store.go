package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"jinoca/internal/domain"

	_ "modernc.org/sqlite"
)

// keepPerChat bounds how many rows are retained per chat. Only the most
// recent window is ever read back, so older rows are pruned on write.
const keepPerChat = 50

// Store implements domain.HistoryStore using SQLite. It records every
// message the bot sees (inbound and its own replies) so the context builder
// can replay a bounded window of prior turns per chat.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id  TEXT NOT NULL,
		chat_jid    TEXT NOT NULL,
		from_me     INTEGER NOT NULL DEFAULT 0,
		content     TEXT NOT NULL,
		sent_at     DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_jid, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Record(ctx context.Context, messageID, chatID string, fromMe bool, content string, at time.Time) error {
	if content == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, chat_jid, from_me, content, sent_at) VALUES (?, ?, ?, ?, ?)`,
		messageID, chatID, fromMe, content, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	s.pruneChat(ctx, chatID)
	return nil
}

// pruneChat drops rows beyond the retention cap for one chat. Failures are
// logged and ignored; pruning is housekeeping, not correctness.
func (s *Store) pruneChat(ctx context.Context, chatID string) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE chat_jid = ? AND id NOT IN (
			SELECT id FROM messages WHERE chat_jid = ? ORDER BY id DESC LIMIT ?
		)`,
		chatID, chatID, keepPerChat,
	)
	if err != nil {
		s.logger.Warn("history prune failed", "chat", chatID, "err", err)
	}
}

func (s *Store) Recent(ctx context.Context, chatID string, limit int, excludeID string) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT from_me, content FROM messages
		 WHERE chat_jid = ? AND message_id <> ? AND content <> ''
		 ORDER BY id DESC LIMIT ?`,
		chatID, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var fromMe bool
		var content string
		if err := rows.Scan(&fromMe, &content); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		role := domain.RoleUser
		if fromMe {
			role = domain.RoleAssistant
		}
		turns = append(turns, domain.Turn{Role: role, Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Query returns newest first; the completion API wants oldest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
