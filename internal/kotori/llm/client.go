// Package llm wraps an OpenAI-style chat-completions endpoint with
// primary/fallback model selection and a strict one-shot retry policy.
//
// The policy is deliberately bounded: a request is attempted at most twice
// (primary, then once with the fallback model). The fallback switch is a
// boolean, never a counter, so the retry can only flip false→true once and
// the client can never recurse indefinitely.
package llm

import (
	"context"
	"errors"
)

// ErrNoCompletion is returned when no usable completion could be obtained,
// after the fallback attempt (when one was available) also failed. Callers
// should treat it as "no result" and surface a user-visible apology rather
// than crash.
var ErrNoCompletion = errors.New("llm: no completion available")

// Message roles as they appear on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged message in a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client produces a completion for an ordered message sequence.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends the message sequence and returns the generated reply
	// text, trimmed of surrounding whitespace. A nil error guarantees a
	// usable (possibly empty) reply; every failure mode is folded into an
	// error wrapping ErrNoCompletion.
	Complete(ctx context.Context, msgs []Message) (string, error)
}

// ModelConfig is the endpoint/model configuration resolved per request.
// Empty BaseURL and APIKey fall back to process-wide defaults; an empty
// Primary model falls back to DefaultModel.
type ModelConfig struct {
	BaseURL  string
	APIKey   string
	Primary  string
	Fallback string
}

// merged returns cfg with empty URL/credential fields filled from defaults.
// Model IDs are intentionally not merged: the persona document is the only
// authority on which models serve a character.
func (cfg ModelConfig) merged(defaults ModelConfig) ModelConfig {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = defaults.APIKey
	}
	return cfg
}
