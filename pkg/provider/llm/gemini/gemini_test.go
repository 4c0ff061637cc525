package gemini

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

	p, err := New("test-key", "gemini-2.0-flash", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestGenerateBuildsGeminiWireShape(t *testing.T) {
	t.Parallel()

	var captured generateRequest
	var capturedURL string

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		capturedURL = r.URL.String()
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ask about budget"}]}}]}`))
	})

	resp, err := p.Generate(context.Background(), llm.Request{
		Turns: []llm.Turn{
			{Role: llm.RoleUser, Content: "how much does it cost"},
			{Role: llm.RoleAssistant, Content: "pricing is custom"},
			{Role: llm.RoleUser, Content: "any ballpark?"},
		},
		SystemPrompt: "you are a sales coach",
		MaxTokens:    256,
		Temperature:  0.7,
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "ask about budget" {
		t.Errorf("text = %q", resp.Text)
	}

	// Auth travels as a query parameter, not a header.
	if want := "key=test-key"; !strings.Contains(capturedURL, want) {
		t.Errorf("URL %q missing %q", capturedURL, want)
	}

	if len(captured.Contents) != 3 {
		t.Fatalf("contents len = %d, want 3", len(captured.Contents))
	}
	if captured.Contents[1].Role != "model" {
		t.Errorf("assistant role mapped to %q, want model", captured.Contents[1].Role)
	}
	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "you are a sales coach" {
		t.Error("systemInstruction not populated")
	}
	if captured.GenerationConfig.MaxOutputTokens != 256 {
		t.Errorf("maxOutputTokens = %d", captured.GenerationConfig.MaxOutputTokens)
	}
	if captured.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("responseMimeType = %q", captured.GenerationConfig.ResponseMimeType)
	}
}

func TestGenerateParsesRetryInfoBackoff(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","details":[
			{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"12s"}]}}`))
	})

	_, err := p.Generate(context.Background(), llm.Request{
		Turns: []llm.Turn{{Role: llm.RoleUser, Content: "hi"}},
	})

	var rle *llm.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rle.RetryAfter != 12*time.Second {
		t.Errorf("RetryAfter = %s, want 12s", rle.RetryAfter)
	}
	if rle.Message != "quota exceeded" {
		t.Errorf("Message = %q", rle.Message)
	}
}

func TestGenerateRateLimitWithoutRetryInfoUsesDefault(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"slow down"}}`))
	})

	_, err := p.Generate(context.Background(), llm.Request{
		Turns: []llm.Turn{{Role: llm.RoleUser, Content: "hi"}},
	})

	var rle *llm.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rle.RetryAfter != llm.DefaultBackoff {
		t.Errorf("RetryAfter = %s, want default %s", rle.RetryAfter, llm.DefaultBackoff)
	}
}

func TestGenerateServerErrorIsProviderError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"backend exploded"}}`))
	})

	_, err := p.Generate(context.Background(), llm.Request{
		Turns: []llm.Turn{{Role: llm.RoleUser, Content: "hi"}},
	})

	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if pe.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", pe.StatusCode)
	}
	if pe.Message != "backend exploded" {
		t.Errorf("Message = %q", pe.Message)
	}
}

func TestGenerateEmptyCandidatesIsEmptyText(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	resp, err := p.Generate(context.Background(), llm.Request{
		Turns: []llm.Turn{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "" {
		t.Errorf("text = %q, want empty", resp.Text)
	}
}
