package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterJudgeMetrics()
	os.Exit(m.Run())
}

// chatRequest mirrors the parts of the chat completion request the agent controls.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxCompletionTokens int `json:"max_completion_tokens"`
	ResponseFormat      struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Name   string          `json:"name"`
			Strict bool            `json:"strict"`
			Schema json.RawMessage `json:"schema"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 5, "total_tokens": 45},
	}
}

func newTestAgent(url string) *Agent {
	return NewAgent(&Config{
		APIKey:    "test-key",
		BaseURL:   url,
		Model:     "test-model",
		MaxTokens: 64,
		Logger:    zap.NewNop(),
	})
}

func conversation() []domain.Message {
	return []domain.Message{
		{Role: domain.RoleUser, Content: "Decide the score."},
		{Role: domain.RoleUser, Content: `{"query":{},"track":{}}`},
	}
}

func TestAgent_Invoke(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(`{"score":0.7}`))
	}))
	defer server.Close()

	raw, err := newTestAgent(server.URL).Invoke(context.Background(), "You are a judge.", conversation())
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if string(raw) != `{"score":0.7}` {
		t.Errorf("raw = %s", raw)
	}

	if got.Model != "test-model" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "You are a judge." {
		t.Errorf("unexpected system message %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" || got.Messages[2].Role != "user" {
		t.Errorf("conversation roles = %q, %q", got.Messages[1].Role, got.Messages[2].Role)
	}
	if got.MaxCompletionTokens != 64 {
		t.Errorf("max_completion_tokens = %d", got.MaxCompletionTokens)
	}
	if got.ResponseFormat.Type != "json_schema" {
		t.Errorf("response_format.type = %q", got.ResponseFormat.Type)
	}
	if got.ResponseFormat.JSONSchema.Name != domain.VerdictSchemaName || !got.ResponseFormat.JSONSchema.Strict {
		t.Errorf("unexpected json_schema %+v", got.ResponseFormat.JSONSchema)
	}
	if !strings.Contains(string(got.ResponseFormat.JSONSchema.Schema), `"score"`) {
		t.Errorf("schema missing score property: %s", got.ResponseFormat.JSONSchema.Schema)
	}
}

func TestAgent_InvokeStripsFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion("```json\n{\"score\":0.25}\n```"))
	}))
	defer server.Close()

	raw, err := newTestAgent(server.URL).Invoke(context.Background(), "p", conversation())
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if string(raw) != `{"score":0.25}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestAgent_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit"}}`))
	}))
	defer server.Close()

	_, err := newTestAgent(server.URL).Invoke(context.Background(), "p", conversation())
	if !errors.Is(err, domain.ErrJudgeUnavailable) {
		t.Fatalf("expected ErrJudgeUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error should carry provider message, got %v", err)
	}
}

func TestAgent_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := completion("")
		resp["choices"] = []any{}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	_, err := newTestAgent(server.URL).Invoke(context.Background(), "p", conversation())
	if !errors.Is(err, domain.ErrMalformedJudgeOutput) {
		t.Fatalf("expected ErrMalformedJudgeOutput, got %v", err)
	}
}

func TestAgent_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestAgent(url).Invoke(context.Background(), "p", conversation())
	if !errors.Is(err, domain.ErrJudgeUnavailable) {
		t.Fatalf("expected ErrJudgeUnavailable, got %v", err)
	}
}

func TestAgent_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
	}))
	defer server.Close()

	if err := newTestAgent(server.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}

func TestParseAPIError_DetailBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"detail":"upstream overloaded"}`))
	}))
	defer server.Close()

	_, err := newTestAgent(server.URL).Invoke(context.Background(), "p", conversation())
	if !errors.Is(err, domain.ErrJudgeUnavailable) {
		t.Fatalf("expected ErrJudgeUnavailable, got %v", err)
	}
}

func TestAgent_ReportsUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(`{"score":0.1}`))
	}))
	defer server.Close()

	var billed int64
	agent := NewAgent(&Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		OnUsage: func(tokens int64) { billed += tokens },
	})

	if _, err := agent.Invoke(context.Background(), "p", conversation()); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if billed != 45 {
		t.Errorf("billed tokens = %d, want 45", billed)
	}
}
