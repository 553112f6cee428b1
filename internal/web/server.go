// Package web serves the presentation-only status surface: a JSON endpoint
// for the connection state and a small page that polls it.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"net/http"
	"time"

	"jinoca/internal/metrics"
	"jinoca/internal/status"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server exposes the status page, the status JSON API and the metrics
// endpoint. All reads go through the status store's snapshot accessor.
type Server struct {
	host   string
	port   int
	store  *status.Store
	logger *slog.Logger
	server *http.Server
	tmpl   *htmltemplate.Template
}

type Config struct {
	Host   string
	Port   int
	Store  *status.Store
	Logger *slog.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tmpl := htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	return &Server{
		host:   cfg.Host,
		port:   cfg.Port,
		store:  cfg.Store,
		logger: cfg.Logger,
		tmpl:   tmpl,
	}
}

// statusResponse is the wire shape of GET /status.
type statusResponse struct {
	Status          string  `json:"status"`
	QR              *string `json:"qr"`
	IsAuthenticated bool    `json:"isAuthenticated"`
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", metrics.Collector.Handler())

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status server listening", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "status.html", nil); err != nil {
		s.logger.Error("render status page", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()

	resp := statusResponse{
		Status:          snap.Message,
		IsAuthenticated: snap.Phase == status.PhaseConnected,
	}
	if snap.QR != "" {
		resp.QR = &snap.QR
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode status", "err", err)
	}
}
