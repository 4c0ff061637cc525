// Package gemini provides an LLM provider backed by the Google Gemini
// generateContent REST API. It implements the llm.Provider interface.
//
// Gemini's wire shape differs from the OpenAI family in every way the
// adapter has to care about: the API key travels in a query parameter rather
// than an Authorization header, roles are "user"/"model" instead of
// "user"/"assistant", the system prompt has its own systemInstruction field,
// token limits live under generationConfig.maxOutputTokens, and JSON mode is
// requested via generationConfig.responseMimeType. Rate-limit responses carry
// their backoff in a google.rpc.RetryInfo error detail instead of a
// Retry-After header.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"

	// defaultTimeout bounds every generation call.
	defaultTimeout = 30 * time.Second
)

var _ llm.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBaseURL overrides the Gemini API base URL. Useful for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements llm.Provider backed by the Gemini REST API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Gemini Provider. apiKey must be non-empty.
// If model is empty, gemini-2.0-flash is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "gemini" }

// ---- wire types ----

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// errorResponse is the google.rpc.Status error envelope. RetryInfo details
// carry the backoff for 429 responses, e.g. {"retryDelay": "7s"}.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.baseURL, url.PathEscape(p.model), url.QueryEscape(p.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &llm.ProviderError{Provider: p.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &llm.ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &llm.RateLimitError{
			Provider:   p.Name(),
			RetryAfter: parseBackoff(respBody),
			Message:    errorMessage(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.ProviderError{
			Provider:   p.Name(),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	text, err := extractText(respBody)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &llm.Response{Text: text}, nil
}

// buildRequest translates the provider-agnostic envelope into the Gemini
// wire shape.
func (p *Provider) buildRequest(req llm.Request) generateRequest {
	out := generateRequest{
		Contents: make([]content, 0, len(req.Turns)),
	}

	for _, t := range req.Turns {
		role := "user"
		if t.Role == llm.RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, content{
			Role:  role,
			Parts: []part{{Text: t.Content}},
		})
	}

	if req.SystemPrompt != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}

	cfg := &generationConfig{
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
	}
	if req.JSONMode {
		cfg.ResponseMimeType = "application/json"
	}
	out.GenerationConfig = cfg

	return out
}

// extractText pulls the completion text out of the response envelope.
// A response with no candidates is treated as an empty completion, which the
// caller classifies as silence.
func extractText(body []byte) (string, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}

	text := ""
	for _, pt := range resp.Candidates[0].Content.Parts {
		text += pt.Text
	}
	return text, nil
}

// parseBackoff extracts the RetryInfo retryDelay from a 429 error body.
// Falls back to llm.DefaultBackoff when the body carries none.
func parseBackoff(body []byte) time.Duration {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return llm.DefaultBackoff
	}
	for _, d := range resp.Error.Details {
		if d.RetryDelay == "" {
			continue
		}
		// retryDelay is a protobuf Duration string like "7s" or "3.5s".
		if dur, err := time.ParseDuration(d.RetryDelay); err == nil && dur > 0 {
			return dur
		}
	}
	return llm.DefaultBackoff
}

// errorMessage extracts the human-readable message from an error body,
// falling back to the raw body for unparseable responses.
func errorMessage(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	return string(body)
}
