// Package llm defines the provider-agnostic generation envelope and the
// Provider interface for Large Language Model backends.
//
// The suggestion pipeline builds one [Request] per admitted utterance and
// hands it to whichever Provider the session is configured with. Each backend
// translates the envelope into its own wire shape: message-array versus
// single-blob prompts, different role vocabularies, different token-limit and
// JSON-mode field names, and different auth placement (header versus query
// parameter). The pipeline never sees any of that — it gets back a plain-text
// [Response] or a typed error.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation and deadlines; a deadline expiry is indistinguishable from a
// network failure to callers.
package llm

import "context"

// Roles used in [Turn]. Backends map these onto their own role vocabulary.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single conversation turn in the generation envelope.
type Turn struct {
	// Role is RoleUser or RoleAssistant.
	Role string

	// Content is the turn's text.
	Content string
}

// Request is the provider-agnostic generation envelope.
type Request struct {
	// Turns is the ordered conversation history. The last turn is the
	// utterance that triggered this generation attempt.
	Turns []Turn

	// SystemPrompt is the high-priority instruction injected ahead of the
	// conversation. Backends that lack a dedicated system slot prepend it
	// to the prompt blob.
	SystemPrompt string

	// MaxTokens caps the completion length. Zero means backend default.
	MaxTokens int

	// Temperature controls output randomness in [0, 2].
	Temperature float64

	// JSONMode requests structured JSON output via the backend's native
	// mechanism. Callers must still strip code fences before parsing; see
	// [StripCodeFence].
	JSONMode bool
}

// Response is the normalized result of a generation call.
type Response struct {
	// Text is the extracted completion text. May be empty or a silence
	// marker; callers classify that with [IsSilence].
	Text string
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Generate sends the envelope to the backend and returns the normalized
	// response. Rate-limited calls return a [*RateLimitError]; other HTTP
	// and transport failures return a [*ProviderError] or a plain wrapped
	// error.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the backend identifier (e.g., "gemini", "openai"), used
	// for logging and metric attributes.
	Name() string
}
