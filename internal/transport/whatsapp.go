// Package transport implements domain.Transport on top of whatsmeow, the
// direct-protocol WhatsApp client. Session state lives in a SQLite container;
// pairing happens once per device store via the QR channel.
package transport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"jinoca/internal/domain"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// WhatsApp implements domain.Transport using whatsmeow.
type WhatsApp struct {
	dbPath string
	logger *slog.Logger

	client *whatsmeow.Client
	bus    domain.MessageBus

	mu      sync.Mutex
	started bool
}

type Config struct {
	DBPath string
	Logger *slog.Logger
}

func New(cfg Config) *WhatsApp {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhatsApp{
		dbPath: cfg.DBPath,
		logger: cfg.Logger,
	}
}

// Start opens the session store, connects and begins publishing inbound
// messages and lifecycle events to the bus. When no stored session exists it
// runs the QR pairing flow.
func (w *WhatsApp) Start(ctx context.Context, bus domain.MessageBus) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("transport already started")
	}

	w.bus = bus

	dbLog := waLog.Stdout("Database", "WARN", false)
	container, err := sqlstore.New(ctx, "sqlite", "file:"+w.dbPath+"?_pragma=foreign_keys(1)", dbLog)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err == sql.ErrNoRows {
		device = container.NewDevice()
	} else if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	w.client = whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", false))
	w.client.AddEventHandler(w.handleEvent)

	if err := w.connect(ctx); err != nil {
		return err
	}

	w.started = true
	return nil
}

// connect dials the server, going through QR pairing first when the device
// has never been registered.
func (w *WhatsApp) connect(ctx context.Context) error {
	if w.client.Store.ID == nil {
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		if err := w.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		go w.pumpQR(qrChan)
		return nil
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// pumpQR forwards pairing codes to the bus until the channel resolves.
func (w *WhatsApp) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			w.bus.PublishLifecycle(domain.LifecycleEvent{
				Type:   domain.LifecycleQR,
				QRCode: evt.Code,
			})
		case whatsmeow.QRChannelSuccess.Event:
			// events.Connected follows; nothing to publish here.
			return
		case whatsmeow.QRChannelTimeout.Event:
			w.bus.PublishLifecycle(domain.LifecycleEvent{
				Type:   domain.LifecycleDisconnected,
				Reason: "qr pairing timed out",
			})
			return
		case "error":
			reason := "qr pairing failed"
			if evt.Error != nil {
				reason = evt.Error.Error()
			}
			w.bus.PublishLifecycle(domain.LifecycleEvent{
				Type:   domain.LifecycleDisconnected,
				Reason: reason,
			})
			return
		}
	}
}

// Reconnect re-dials after a dropped link. A lost session falls back to a
// fresh QR pairing flow so the status page can show a new code.
func (w *WhatsApp) Reconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == nil {
		return errors.New("transport not started")
	}
	if w.client.IsConnected() {
		return nil
	}
	return w.connect(ctx)
}

func (w *WhatsApp) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Disconnect()
	}
	w.started = false
}

func (w *WhatsApp) handleEvent(evt interface{}) {
	ctx := context.Background()

	switch v := evt.(type) {
	case *events.Message:
		msg, ok := w.toInbound(v)
		if !ok {
			return
		}
		w.bus.Publish(msg)

	case *events.Connected:
		_ = w.client.SendPresence(ctx, types.PresenceAvailable)
		w.bus.PublishLifecycle(domain.LifecycleEvent{Type: domain.LifecycleConnected})

	case *events.Disconnected:
		w.bus.PublishLifecycle(domain.LifecycleEvent{
			Type:   domain.LifecycleDisconnected,
			Reason: "link closed",
		})

	case *events.LoggedOut:
		w.bus.PublishLifecycle(domain.LifecycleEvent{
			Type:   domain.LifecycleLoggedOut,
			Reason: fmt.Sprintf("logged out (reason %d)", int(v.Reason)),
		})

	case *events.StreamReplaced:
		w.bus.PublishLifecycle(domain.LifecycleEvent{
			Type:   domain.LifecycleFatal,
			Reason: "stream replaced by another session",
		})

	case *events.TemporaryBan:
		w.bus.PublishLifecycle(domain.LifecycleEvent{
			Type:   domain.LifecycleFatal,
			Reason: fmt.Sprintf("temporary ban: %s", v.Code),
		})

	case *events.ConnectFailure:
		w.bus.PublishLifecycle(domain.LifecycleEvent{
			Type:   domain.LifecycleDisconnected,
			Reason: fmt.Sprintf("connect failure: %s", v.Reason),
		})
	}
}

// toInbound maps a whatsmeow message event to the transport-agnostic shape.
// Messages without extractable text are dropped.
func (w *WhatsApp) toInbound(v *events.Message) (domain.InboundMessage, bool) {
	text := extractText(v.Message)
	if text == "" {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		ID:                v.Info.ID,
		ChatID:            v.Info.Chat.String(),
		SenderID:          v.Info.Sender.String(),
		Content:           text,
		IsFromSelf:        v.Info.IsFromMe,
		IsGroupChat:       v.Info.IsGroup || v.Info.Chat.Server == types.GroupServer,
		IsStatusBroadcast: v.Info.Chat == types.StatusBroadcastJID,
		Timestamp:         v.Info.Timestamp,
	}, true
}

func extractText(msg *waProto.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetExtendedTextMessage().GetText() != "":
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetImageMessage().GetCaption() != "":
		return msg.GetImageMessage().GetCaption()
	}
	return ""
}

func (w *WhatsApp) SendText(ctx context.Context, chatID string, text string) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", chatID, err)
	}
	msg := &waProto.Message{Conversation: proto.String(text)}
	if _, err := w.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

func (w *WhatsApp) SendImage(ctx context.Context, chatID string, png []byte, caption string) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", chatID, err)
	}

	up, err := w.client.Upload(ctx, png, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("image upload: %w", err)
	}

	msg := &waProto.Message{
		ImageMessage: &waProto.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String("image/png"),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		},
	}
	if _, err := w.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send image: %w", err)
	}
	return nil
}

func (w *WhatsApp) SetTyping(ctx context.Context, chatID string, typing bool) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", chatID, err)
	}
	state := types.ChatPresencePaused
	if typing {
		state = types.ChatPresenceComposing
	}
	return w.client.SendChatPresence(ctx, jid, state, types.ChatPresenceMediaText)
}
