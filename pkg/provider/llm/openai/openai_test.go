package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New("test-key", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestGenerateBuildsMessageArray(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"mention the migration timeline"}}]}`))
	})

	resp, err := p.Generate(context.Background(), llm.Request{
		Turns: []llm.Turn{
			{Role: llm.RoleUser, Content: "how long does a migration take"},
		},
		SystemPrompt: "you are a sales coach",
		MaxTokens:    200,
		Temperature:  0.5,
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "mention the migration timeline" {
		t.Errorf("text = %q", resp.Text)
	}

	msgs, ok := captured["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v, want system + user", captured["messages"])
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("first role = %v, want system", first["role"])
	}
	if captured["max_tokens"] != float64(200) {
		t.Errorf("max_tokens = %v", captured["max_tokens"])
	}
	rf, ok := captured["response_format"].(map[string]any)
	if !ok || rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", captured["response_format"])
	}
}

func TestGenerateParsesRetryAfterHeader(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "25")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit reached","type":"tokens"}}`))
	})

	_, err := p.Generate(context.Background(), llm.Request{
		Turns: []llm.Turn{{Role: llm.RoleUser, Content: "hi"}},
	})

	var rle *llm.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rle.RetryAfter != 25*time.Second {
		t.Errorf("RetryAfter = %s, want 25s", rle.RetryAfter)
	}
}

func TestGenerateNonRateLimitErrorIsProviderError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})

	_, err := p.Generate(context.Background(), llm.Request{
		Turns: []llm.Turn{{Role: llm.RoleUser, Content: "hi"}},
	})

	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if pe.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", pe.StatusCode)
	}
	if !strings.Contains(pe.Message, "invalid api key") {
		t.Errorf("Message = %q", pe.Message)
	}
}
