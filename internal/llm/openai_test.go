package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL + "/v1"
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  "gpt-4o-mini",
	}
}

func openaiReply(content, finish string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": finish,
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     40,
			"completion_tokens": 25,
			"total_tokens":      65,
		},
	}
}

func TestOpenAIProvider_AnswerCall(t *testing.T) {
	answer := `{"answer":"The closing speed is 120 km/h.","reasoning":"70 plus 50."}`

	var wire struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	handler := func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &wire)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openaiReply(answer, "stop"))
	}

	p := newTestOpenAIProvider(t, handler)
	resp, err := p.Generate(context.Background(), Request{
		System:    "You answer questions completely and directly.",
		Prompt:    "What is the closing speed of the two trains?",
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != answer {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if resp.Usage.TotalTokens != 65 {
		t.Fatalf("expected 65 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if resp.StopReason != "end" {
		t.Fatalf("expected stop reason 'end', got %q", resp.StopReason)
	}

	// Exactly system + user, prompt as the user message.
	if len(wire.Messages) != 2 {
		t.Fatalf("expected 2 wire messages, got %d", len(wire.Messages))
	}
	if wire.Messages[0].Role != "system" || wire.Messages[1].Role != "user" {
		t.Fatalf("unexpected roles: %s/%s", wire.Messages[0].Role, wire.Messages[1].Role)
	}
	if wire.Messages[1].Content != "What is the closing speed of the two trains?" {
		t.Fatalf("prompt mangled on the wire: %q", wire.Messages[1].Content)
	}
}

func TestOpenAIProvider_NoSystemPrompt(t *testing.T) {
	var wire struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	handler := func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &wire)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openaiReply(`{"answer":"ok","reasoning":"r"}`, "stop"))
	}

	p := newTestOpenAIProvider(t, handler)
	if _, err := p.Generate(context.Background(), Request{Prompt: "q", MaxTokens: 64}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wire.Messages) != 1 || wire.Messages[0].Role != "user" {
		t.Fatalf("expected a single user message, got %+v", wire.Messages)
	}
}

func TestOpenAIProvider_LengthFinishMapsToMaxTokens(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openaiReply(`{"answer":"partial`, "length"))
	}

	p := newTestOpenAIProvider(t, handler)
	resp, err := p.Generate(context.Background(), Request{Prompt: "q", MaxTokens: 16})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != "max_tokens" {
		t.Fatalf("expected stop reason 'max_tokens', got %q", resp.StopReason)
	}
}

func TestOpenAIProvider_RateLimit(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "tokens",
				"message": "Rate limit exceeded",
				"code":    "rate_limit_exceeded",
			},
		})
	}

	p := newTestOpenAIProvider(t, handler)
	_, err := p.Generate(context.Background(), Request{Prompt: "q", MaxTokens: 100})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got: %T (%v)", err, err)
	}
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "server_error",
				"message": "Internal server error",
			},
		})
	}

	p := newTestOpenAIProvider(t, handler)
	_, err := p.Generate(context.Background(), Request{Prompt: "q", MaxTokens: 100})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got: %T (%v)", err, err)
	}
}

func TestOpenAIModelMapping(t *testing.T) {
	if got := resolveModel("gpt-4o-mini", openaiModels); got != "gpt-4o-mini" {
		t.Fatalf("resolveModel(gpt-4o-mini) = %q", got)
	}
	if got := resolveModel("gpt-4.1-custom", openaiModels); got != "gpt-4.1-custom" {
		t.Fatalf("unknown models must pass through, got %q", got)
	}
}
