package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func completionBody(content string) string {
	b, _ := json.Marshal(chatResponse{
		Choices: []struct {
			Message Message `json:"message"`
		}{{Message: Message{Role: RoleAssistant, Content: content}}},
	})
	return string(b)
}

// newTestClient builds a client whose persona source pins the given models.
func newTestClient(baseURL, apiKey, primary, fallback string) *HTTPClient {
	return NewHTTPClient(ModelConfig{BaseURL: baseURL, APIKey: apiKey}, func() ModelConfig {
		return ModelConfig{Primary: primary, Fallback: fallback}
	})
}

// recordedRequest captures the model and auth of one inbound request.
type recordedRequest struct {
	model string
	auth  string
}

func decodeRequest(t *testing.T, r *http.Request) recordedRequest {
	t.Helper()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return recordedRequest{model: req.Model, auth: r.Header.Get("Authorization")}
}

func TestComplete_Success(t *testing.T) {
	var got recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		got = decodeRequest(t, r)
		w.Write([]byte(completionBody("  Hello!  ")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "key-123", "model-a", "")
	reply, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "Hello!" {
		t.Errorf("expected trimmed reply %q, got %q", "Hello!", reply)
	}
	if got.model != "model-a" {
		t.Errorf("expected primary model, got %q", got.model)
	}
	if got.auth != "Bearer key-123" {
		t.Errorf("expected bearer auth, got %q", got.auth)
	}
}

func TestComplete_RateLimitedUsesFallbackModel(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		models = append(models, req.model)
		if len(models) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionBody("from fallback")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "model-a", "model-b")
	reply, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "from fallback" {
		t.Errorf("expected fallback reply, got %q", reply)
	}
	if len(models) != 2 || models[0] != "model-a" || models[1] != "model-b" {
		t.Errorf("expected [model-a model-b], got %v", models)
	}
}

func TestComplete_RateLimitedWithoutFallbackRetriesDefault(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		models = append(models, req.model)
		if len(models) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "model-a", "")
	if _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(models) != 2 || models[1] != DefaultModel {
		t.Errorf("expected second attempt on %s, got %v", DefaultModel, models)
	}
}

func TestComplete_PersistentFailureExactlyTwoAttempts(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "model-a", "model-b")
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrNoCompletion) {
		t.Fatalf("expected ErrNoCompletion, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestComplete_ServerErrorWithoutFallbackSingleAttempt(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "model-a", "")
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrNoCompletion) {
		t.Fatalf("expected ErrNoCompletion, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt without a fallback model, got %d", attempts)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "model-a", "")
	if _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}); !errors.Is(err, ErrNoCompletion) {
		t.Fatalf("expected ErrNoCompletion for empty choices, got %v", err)
	}
}

func TestComplete_SourceOverridesDefaults(t *testing.T) {
	var got recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeRequest(t, r)
		w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	c := NewHTTPClient(ModelConfig{BaseURL: srv.URL, APIKey: "default-key"}, func() ModelConfig {
		return ModelConfig{APIKey: "persona-key", Primary: "persona-model"}
	})
	if _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.model != "persona-model" {
		t.Errorf("expected persona model, got %q", got.model)
	}
	if got.auth != "Bearer persona-key" {
		t.Errorf("expected persona key, got %q", got.auth)
	}
}

func TestCompletionsURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://api.example.com", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com/", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com/v1/chat/completions", "https://api.example.com/v1/chat/completions"},
	}
	for _, tt := range tests {
		if got := completionsURL(tt.base); got != tt.want {
			t.Errorf("completionsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
