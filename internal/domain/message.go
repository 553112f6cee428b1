package domain

import "time"

// InboundMessage is one chat message delivered by the messaging transport.
// It is immutable once published.
type InboundMessage struct {
	ID                string // transport message ID, unique per message
	ChatID            string // JID of the originating chat
	SenderID          string // JID of the sender
	Content           string
	IsFromSelf        bool // sent by the bot's own account
	IsGroupChat       bool
	IsStatusBroadcast bool // the status@broadcast pseudo-chat
	Timestamp         time.Time
}

// Roles for conversation turns, matching the chat-completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged utterance in the conversation window sent to the
// completion API.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
