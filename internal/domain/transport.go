package domain

import "context"

// LifecycleEventType classifies a transport lifecycle event.
type LifecycleEventType string

const (
	// LifecycleQR carries a fresh pairing code that must be scanned.
	LifecycleQR LifecycleEventType = "qr"
	// LifecycleConnected means the session handshake completed.
	LifecycleConnected LifecycleEventType = "connected"
	// LifecycleDisconnected means the link dropped; reconnecting is allowed.
	LifecycleDisconnected LifecycleEventType = "disconnected"
	// LifecycleLoggedOut means the session was permanently invalidated.
	LifecycleLoggedOut LifecycleEventType = "logged_out"
	// LifecycleFatal means an unrecoverable transport failure.
	LifecycleFatal LifecycleEventType = "fatal"
)

// LifecycleEvent is one connection-state change reported by the transport.
type LifecycleEvent struct {
	Type   LifecycleEventType
	QRCode string // raw pairing payload, set only for LifecycleQR
	Reason string // human-readable detail for disconnects and failures
}

// Transport is the capability surface the bot needs from a messaging backend.
// Inbound messages and lifecycle events are published to the bus handed to
// Start; everything else is backend-agnostic.
type Transport interface {
	Start(ctx context.Context, bus MessageBus) error
	Stop()
	// Reconnect re-establishes a dropped connection. When the stored session
	// is gone it starts a fresh QR pairing flow.
	Reconnect(ctx context.Context) error
	SendText(ctx context.Context, chatID string, text string) error
	// SendImage uploads png bytes and delivers them as an image attachment
	// with the given caption.
	SendImage(ctx context.Context, chatID string, png []byte, caption string) error
	// SetTyping toggles the "composing" presence indicator in a chat.
	SetTyping(ctx context.Context, chatID string, typing bool) error
}
