package llm

import (
	"fmt"
	"time"
)

// DefaultBackoff is applied when a backend reports a rate limit without a
// parseable retry delay.
const DefaultBackoff = 30 * time.Second

// RateLimitError reports a 429-class response from a backend. The caller must
// not retry inline; RetryAfter tells it how long to refuse new attempts.
type RateLimitError struct {
	// Provider is the backend name.
	Provider string

	// RetryAfter is the backoff duration parsed from the response (a
	// structured retry-delay field or a Retry-After header). Never zero;
	// backends substitute [DefaultBackoff] when the response carries none.
	RetryAfter time.Duration

	// Message is the raw error message from the backend, for logging.
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s: %s", e.Provider, e.RetryAfter, e.Message)
}

// ProviderError reports a non-429 HTTP failure from a backend. The raw status
// and message are preserved for logging; callers treat it as "no suggestion
// this turn".
type ProviderError struct {
	// Provider is the backend name.
	Provider string

	// StatusCode is the HTTP status of the failed call, or 0 for transport
	// failures that never produced a response.
	StatusCode int

	// Message is the raw error body or transport error text.
	Message string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}
