package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// pngMagic is the fixed 8-byte PNG file signature.
var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ImageGen implements domain.ImageGenerator against an endpoint that renders
// a PNG for a prompt URL-encoded into the request path. The binary payload
// is returned to the caller and never cached or written to disk.
type ImageGen struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type ImageGenConfig struct {
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewImageGen(cfg ImageGenConfig) *ImageGen {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://imgen.duck.mom/prompt/"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	return &ImageGen{
		baseURL: cfg.BaseURL,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

// Generate issues one GET request for the prompt and returns the raw PNG
// bytes. Empty or non-PNG payloads are failures.
func (g *ImageGen) Generate(ctx context.Context, prompt string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", g.baseURL+url.PathEscape(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("imagegen: empty payload")
	}
	if !bytes.HasPrefix(data, pngMagic) {
		return nil, fmt.Errorf("imagegen: payload is not a PNG")
	}

	return data, nil
}
