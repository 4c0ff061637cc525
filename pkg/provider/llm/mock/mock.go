// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider to feed controlled completion texts (or errors) to the
// suggestion coordinator without a live backend, and to inspect the requests
// it builds.
//
// Example:
//
//	p := &mock.Provider{Responses: []string{"ask about budget", "---"}}
//	resp, _ := p.Generate(ctx, req) // "ask about budget", then "---"
package mock

import (
	"context"
	"sync"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the Request passed to Generate.
	Req llm.Request
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned by successive Generate calls. When exhausted,
	// the last entry repeats. Empty means an empty response.
	Responses []string

	// Err, if non-nil, is returned from every Generate call instead of a
	// response. Set a *llm.RateLimitError here to exercise backoff paths.
	Err error

	// GenerateFunc, when set, overrides Responses/Err entirely.
	GenerateFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// Calls records every invocation of Generate in order.
	Calls []GenerateCall
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	n := len(p.Calls)
	p.Calls = append(p.Calls, GenerateCall{Ctx: ctx, Req: req})
	fn := p.GenerateFunc
	err := p.Err
	var text string
	if len(p.Responses) > 0 {
		if n >= len(p.Responses) {
			n = len(p.Responses) - 1
		}
		text = p.Responses[n]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	if p.NameValue == "" {
		return "mock"
	}
	return p.NameValue
}

// CallCount returns the number of Generate invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
