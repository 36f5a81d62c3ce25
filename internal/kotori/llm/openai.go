package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ayatsuji/kotori/common/redact"
)

const (
	// DefaultBaseURL is the process-wide default endpoint, overridable via
	// configuration and per persona document.
	DefaultBaseURL = "https://api.electronhub.top"

	// DefaultModel is used when the persona configures no model at all.
	DefaultModel = "gpt-3.5-turbo"

	// completionsPath is the chat-completions route every base URL is
	// normalized to target.
	completionsPath = "/v1/chat/completions"

	defaultTimeout = 60 * time.Second
)

// Fixed sampling configuration for every completion request.
const (
	temperature      = 0.8
	maxTokens        = 1000
	topP             = 0.9
	frequencyPenalty = 0.1
	presencePenalty  = 0.1
)

// HTTPClient implements Client against any OpenAI-compatible endpoint.
type HTTPClient struct {
	defaults ModelConfig
	source   func() ModelConfig
	client   *http.Client
}

// NewHTTPClient returns an HTTPClient. defaults supplies the process-wide
// endpoint URL and credential; source is consulted on every request so that
// runtime model overrides take effect immediately. A nil source means the
// defaults are used as-is.
func NewHTTPClient(defaults ModelConfig, source func() ModelConfig) *HTTPClient {
	if defaults.BaseURL == "" {
		defaults.BaseURL = DefaultBaseURL
	}
	if source == nil {
		source = func() ModelConfig { return ModelConfig{} }
	}
	return &HTTPClient{
		defaults: defaults,
		source:   source,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

var _ Client = (*HTTPClient)(nil)

// --- wire types ---

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	MaxTokens        int       `json:"max_tokens"`
	TopP             float64   `json:"top_p"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete implements Client. The first attempt uses the primary model; on
// rate limiting, any other non-200 status, or a transport failure, exactly
// one more attempt is made with the fallback model before giving up.
func (c *HTTPClient) Complete(ctx context.Context, msgs []Message) (string, error) {
	return c.complete(ctx, msgs, false)
}

func (c *HTTPClient) complete(ctx context.Context, msgs []Message, useFallback bool) (string, error) {
	cfg := c.source().merged(c.defaults)

	model := cfg.Primary
	if useFallback {
		model = cfg.Fallback
	}
	if model == "" {
		model = DefaultModel
	}

	url := completionsURL(cfg.BaseURL)

	body, err := json.Marshal(chatRequest{
		Model:            model,
		Messages:         msgs,
		Temperature:      temperature,
		MaxTokens:        maxTokens,
		TopP:             topP,
		FrequencyPenalty: frequencyPenalty,
		PresencePenalty:  presencePenalty,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport failure (timeout, connection refused, …).
		if !useFallback && cfg.Fallback != "" {
			slog.Warn("completion transport error, trying fallback model", "err", err, "fallback", cfg.Fallback)
			return c.complete(ctx, msgs, true)
		}
		return "", fmt.Errorf("%w: %v", ErrNoCompletion, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrNoCompletion, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("%w: decode response: %v", ErrNoCompletion, err)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("%w: response contained no choices", ErrNoCompletion)
		}
		return strings.TrimSpace(parsed.Choices[0].Message.Content), nil

	case resp.StatusCode == http.StatusTooManyRequests && !useFallback:
		// Rate limited on the primary: always try the fallback slot, even
		// when unconfigured — model selection then lands on DefaultModel.
		slog.Warn("completion rate limited, trying fallback model", "model", model)
		return c.complete(ctx, msgs, true)

	default:
		slog.Error("completion API error",
			"status", resp.StatusCode,
			"body", redact.String(truncate(string(respBody), 200), cfg.APIKey))
		if !useFallback && cfg.Fallback != "" {
			return c.complete(ctx, msgs, true)
		}
		return "", fmt.Errorf("%w: HTTP %d", ErrNoCompletion, resp.StatusCode)
	}
}

// completionsURL normalizes base to target the chat-completions path.
func completionsURL(base string) string {
	if strings.HasSuffix(base, completionsPath) {
		return base
	}
	return strings.TrimRight(base, "/") + completionsPath
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
