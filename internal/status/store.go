// Package status tracks the WhatsApp connection lifecycle as an explicit
// state machine. The store is purely reactive to transport lifecycle events;
// the only action it initiates itself is the delayed reconnect it schedules
// when the link drops.
package status

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"jinoca/internal/domain"

	qrcode "github.com/skip2/go-qrcode"
)

// Phase is the connection lifecycle state.
type Phase string

const (
	PhaseStarting     Phase = "starting"
	PhaseAwaitingScan Phase = "awaiting_scan"
	PhaseConnected    Phase = "connected"
	PhaseDisconnected Phase = "disconnected"
	PhaseFatalError   Phase = "fatal_error"
)

// Human-readable status messages shown on the status page.
const (
	msgStarting     = "Iniciando..."
	msgAwaitingScan = "Aguardando scan do QR Code."
	msgConnected    = "Conectado! 🤖"
	msgDisconnected = "Desconectado. Tentando reconectar..."
	msgFatal        = "Erro crítico. Verifique os logs."
)

const qrImageSize = 300

// Snapshot is a read-only view of the current connection status.
type Snapshot struct {
	Phase   Phase
	Message string
	QR      string // data URL of the QR PNG, only while awaiting scan
}

// Store holds the connection status. Writes come from transport lifecycle
// events, reads from the HTTP status surface; all access is mutex-guarded.
type Store struct {
	mu      sync.RWMutex
	phase   Phase
	message string
	qr      string

	reconnectDelay time.Duration
	reconnect      func()
	timer          *time.Timer
	logger         *slog.Logger
}

type StoreConfig struct {
	ReconnectDelay time.Duration
	// Reconnect is invoked once, ReconnectDelay after a non-fatal disconnect.
	Reconnect func()
	Logger    *slog.Logger
}

func New(cfg StoreConfig) *Store {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		phase:          PhaseStarting,
		message:        msgStarting,
		reconnectDelay: cfg.ReconnectDelay,
		reconnect:      cfg.Reconnect,
		logger:         cfg.Logger,
	}
}

// Run consumes lifecycle events until the channel closes or ctx is done.
func (s *Store) Run(ctx context.Context, events <-chan domain.LifecycleEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.Apply(evt)
		}
	}
}

// Apply transitions the state machine for one lifecycle event.
func (s *Store) Apply(evt domain.LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseFatalError {
		// Terminal: nothing recovers without a redeploy.
		return
	}

	switch evt.Type {
	case domain.LifecycleQR:
		s.phase = PhaseAwaitingScan
		s.message = msgAwaitingScan
		s.qr = encodeQR(evt.QRCode, s.logger)

	case domain.LifecycleConnected:
		s.phase = PhaseConnected
		s.message = msgConnected
		s.qr = ""
		s.cancelTimerLocked()

	case domain.LifecycleDisconnected:
		s.phase = PhaseDisconnected
		s.message = msgDisconnected
		// An expired pairing code must not linger on the status page.
		s.qr = ""
		s.logger.Warn("transport disconnected", "reason", evt.Reason)
		s.scheduleReconnectLocked()

	case domain.LifecycleLoggedOut, domain.LifecycleFatal:
		s.phase = PhaseFatalError
		s.message = msgFatal
		s.qr = ""
		s.cancelTimerLocked()
		s.logger.Error("transport failure is unrecoverable", "type", string(evt.Type), "reason", evt.Reason)
	}
}

// Fail records a startup failure that did not come through the event stream.
func (s *Store) Fail(reason string) {
	s.Apply(domain.LifecycleEvent{Type: domain.LifecycleFatal, Reason: reason})
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending.
func (s *Store) scheduleReconnectLocked() {
	if s.reconnect == nil || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		s.timer = nil
		fatal := s.phase == PhaseFatalError
		s.mu.Unlock()
		if fatal {
			return
		}
		s.logger.Info("attempting reconnect")
		s.reconnect()
	})
}

func (s *Store) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Phase:   s.phase,
		Message: s.message,
		QR:      s.qr,
	}
}

func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase == PhaseConnected
}

// encodeQR renders the pairing payload as a PNG data URL for the status page.
func encodeQR(code string, logger *slog.Logger) string {
	if code == "" {
		return ""
	}
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		logger.Error("qr encode failed", "err", err)
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
