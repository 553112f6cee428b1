package bus

import (
	"log/slog"
	"sync"
	"time"

	"jinoca/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based bus connecting the transport to the
// dispatch pipeline and the status store.
type InMemoryBus struct {
	messages  chan domain.InboundMessage
	lifecycle chan domain.LifecycleEvent
	mu        sync.RWMutex
	closed    bool
	logger    *slog.Logger
}

// New creates a new InMemoryBus with the given message buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		messages:  make(chan domain.InboundMessage, bufferSize),
		lifecycle: make(chan domain.LifecycleEvent, 16),
		logger:    logger,
	}
}

// Publish delivers an inbound message to the pipeline. Blocks up to 10
// seconds when the bus is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.messages <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...", "chat", msg.ChatID, "sender", msg.SenderID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.messages <- msg:
			b.logger.Info("message delivered after wait", "chat", msg.ChatID)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"chat", msg.ChatID,
				"sender", msg.SenderID,
			)
		}
	}
}

// PublishLifecycle delivers a connection-state change to the status store.
// Lifecycle events are few and small; a blocked send waits briefly and then
// drops the event.
func (b *InMemoryBus) PublishLifecycle(evt domain.LifecycleEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish lifecycle event to closed bus")
		return
	}

	select {
	case b.lifecycle <- evt:
	case <-time.After(publishTimeout):
		b.logger.Error("lifecycle event dropped", "type", string(evt.Type))
	}
}

func (b *InMemoryBus) Messages() <-chan domain.InboundMessage {
	return b.messages
}

func (b *InMemoryBus) Lifecycle() <-chan domain.LifecycleEvent {
	return b.lifecycle
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.messages)
		close(b.lifecycle)
	}
}
