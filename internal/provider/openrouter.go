package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"jinoca/internal/domain"
)

// Request metadata OpenRouter requires to identify the calling application.
const (
	openRouterReferer = "http://localhost:3000"
	openRouterTitle   = "Jinoca Bot"
)

// OpenRouter implements domain.Completer against an OpenAI-compatible
// chat-completion endpoint. One request per call, no retries: any failure is
// returned to the caller, which maps it to the fixed fallback reply.
type OpenRouter struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenRouterConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOpenRouter(cfg OpenRouterConfig) *OpenRouter {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://openrouter.ai/api/v1"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenRouter{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimSuffix(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

// Healthy checks that the API is reachable and the credential is accepted.
func (o *OpenRouter) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("openrouter not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("openrouter: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openrouter returned %d", resp.StatusCode)
	}
	return nil
}

type orRequest struct {
	Model    string        `json:"model"`
	Messages []domain.Turn `json:"messages"`
}

type orResponse struct {
	Choices []orChoice `json:"choices"`
}

type orChoice struct {
	Message domain.Turn `json:"message"`
}

// Complete sends the conversation window and returns the first choice's
// message content with surrounding whitespace trimmed.
func (o *OpenRouter) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	body := orRequest{
		Model:    o.model,
		Messages: turns,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("HTTP-Referer", openRouterReferer)
	httpReq.Header.Set("X-Title", openRouterTitle)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openrouter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openrouter %d: %s", resp.StatusCode, string(respBody))
	}

	var orResp orResponse
	if err := json.NewDecoder(resp.Body).Decode(&orResp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	if len(orResp.Choices) == 0 {
		return "", fmt.Errorf("openrouter: response has no choices")
	}

	return strings.TrimSpace(orResp.Choices[0].Message.Content), nil
}
