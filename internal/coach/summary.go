package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm"
)

// Summary is a structured recap of the conversation so far.
type Summary struct {
	// Overview is a short prose recap.
	Overview string `json:"overview"`

	// KeyPoints lists the main facts and needs the customer raised.
	KeyPoints []string `json:"key_points"`

	// Objections lists pushback the customer voiced.
	Objections []string `json:"objections"`

	// NextSteps lists concrete follow-ups for the rep.
	NextSteps []string `json:"next_steps"`
}

// StructuredOutputError reports that the model's JSON-mode reply did not
// decode into the expected schema. Raw carries the reply for logging.
type StructuredOutputError struct {
	Raw string
	Err error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("coach: model returned malformed structured output: %v", e.Err)
}

func (e *StructuredOutputError) Unwrap() error { return e.Err }

const summaryPrompt = `Summarize the sales conversation so far. Reply with a single JSON object with these keys:
  "overview": one or two sentences recapping the call
  "key_points": array of the main facts and needs the customer raised
  "objections": array of pushback the customer voiced, empty if none
  "next_steps": array of concrete follow-ups for the rep
Reply with JSON only.`

// Summarize asks the model for a structured recap of the session's history.
// It bypasses the suggestion throttle: summaries are explicit requests, not
// ambient coaching.
func (s *Session) Summarize(ctx context.Context) (*Summary, error) {
	turns := s.history.Turns()
	if len(turns) == 0 {
		return &Summary{Overview: "No conversation yet."}, nil
	}

	resp, err := s.provider.Generate(ctx, llm.Request{
		Turns:        turns,
		SystemPrompt: summaryPrompt,
		MaxTokens:    600,
		Temperature:  0.3,
		JSONMode:     true,
	})
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.provider.Name(), "llm")
		return nil, fmt.Errorf("coach: summarize: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, s.provider.Name(), "llm", "ok")

	// Some backends wrap JSON-mode output in a code fence anyway.
	raw := strings.TrimSpace(llm.StripCodeFence(resp.Text))

	var sum Summary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		s.log.Warn("summary output did not decode", "error", err)
		return nil, &StructuredOutputError{Raw: resp.Text, Err: err}
	}
	return &sum, nil
}
