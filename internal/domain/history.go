package domain

import (
	"context"
	"time"
)

// HistoryStore records the messages the bot has seen so the context builder
// can replay a bounded window of prior turns per chat.
type HistoryStore interface {
	// Record persists one message. fromMe marks messages sent by the bot's
	// own account; they come back from Recent as assistant turns.
	Record(ctx context.Context, messageID, chatID string, fromMe bool, content string, at time.Time) error
	// Recent returns up to limit prior turns for the chat, oldest first,
	// skipping the message with excludeID and any empty-content rows.
	Recent(ctx context.Context, chatID string, limit int, excludeID string) ([]Turn, error)
	Close() error
}
