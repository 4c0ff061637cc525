// Package openai provides an LLM provider backed by the OpenAI chat
// completions API. It implements the llm.Provider interface.
//
// The envelope maps onto OpenAI's message-array convention: the system prompt
// becomes a "system" message, turns keep their "user"/"assistant" roles, the
// token cap is max_tokens, and JSON mode is response_format json_object. Auth
// is a bearer Authorization header (handled by the SDK); 429 backoff comes
// from the Retry-After response header.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm"
)

// defaultTimeout bounds every generation call.
const defaultTimeout = 30 * time.Second

var _ llm.Provider = (*Provider)(nil)

type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible backends (Groq, Together, local servers) and for tests.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
		// The SDK retries 429s by default; the coordinator owns backoff, so
		// surface them immediately instead.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "openai" }

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	params := p.buildParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return &llm.Response{}, nil
	}

	return &llm.Response{Text: resp.Choices[0].Message.Content}, nil
}

// buildParams translates the provider-agnostic envelope into chat completion
// parameters.
func (p *Provider) buildParams(req llm.Request) oai.ChatCompletionNewParams {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, t := range req.Turns {
		switch t.Role {
		case llm.RoleAssistant:
			msgs = append(msgs, oai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, oai.UserMessage(t.Content))
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    msgs,
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSONMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// classifyError maps SDK errors onto the package's typed errors. 429s carry
// their backoff in the Retry-After response header.
func (p *Provider) classifyError(err error) error {
	var apiErr *oai.Error
	if !errors.As(err, &apiErr) {
		return &llm.ProviderError{Provider: p.Name(), Message: err.Error()}
	}

	if apiErr.StatusCode == http.StatusTooManyRequests {
		return &llm.RateLimitError{
			Provider:   p.Name(),
			RetryAfter: retryAfter(apiErr.Response),
			Message:    apiErr.Error(),
		}
	}
	return &llm.ProviderError{
		Provider:   p.Name(),
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Error(),
	}
}

// retryAfter parses the Retry-After header (delta-seconds form) from a 429
// response, substituting llm.DefaultBackoff when absent or unparseable.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return llm.DefaultBackoff
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return llm.DefaultBackoff
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return llm.DefaultBackoff
}
