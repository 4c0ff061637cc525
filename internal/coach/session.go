// Package coach coordinates suggestion generation for one live call: it
// decides which utterances deserve an LLM call, scopes knowledge-base
// retrieval to the active persona, and enforces the pacing rules that keep a
// session from flooding the provider.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AntoineDubuc/wingman-ai-sub005/internal/observe"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/kb"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm"
)

// DefaultCooldown is the minimum gap between two suggestion generations in
// one session.
const DefaultCooldown = 15 * time.Second

// DefaultMinWords is the shortest utterance, in words, worth generating a
// suggestion for.
const DefaultMinWords = 2

// defaultMaxTokens bounds suggestion length.
const defaultMaxTokens = 300

// defaultTemperature is the sampling temperature for suggestion generation.
const defaultTemperature = 0.7

// RejectionReason explains why an utterance did not reach the LLM.
type RejectionReason string

const (
	// ReasonTooShort means the utterance had fewer words than the minimum.
	ReasonTooShort RejectionReason = "too_short"

	// ReasonNotActionable means the utterance was filler or an
	// acknowledgment rather than a question or opportunity.
	ReasonNotActionable RejectionReason = "not_actionable"

	// ReasonOverlap means a generation was already in flight.
	ReasonOverlap RejectionReason = "overlap"

	// ReasonRateLimited means the provider's backoff window is still open.
	ReasonRateLimited RejectionReason = "rate_limited"

	// ReasonCooldown means the last suggestion was delivered too recently.
	ReasonCooldown RejectionReason = "cooldown"
)

// OutcomeKind tags what HandleUtterance produced.
type OutcomeKind string

const (
	// OutcomeSuggestion means a suggestion was generated and should be
	// shown.
	OutcomeSuggestion OutcomeKind = "suggestion"

	// OutcomeSilence means the model deliberately declined to suggest.
	OutcomeSilence OutcomeKind = "silence"

	// OutcomeRejected means the throttle refused the utterance before any
	// provider call.
	OutcomeRejected OutcomeKind = "rejected"

	// OutcomeError means generation was attempted and failed.
	OutcomeError OutcomeKind = "error"
)

// Suggestion is a generated coaching suggestion.
type Suggestion struct {
	// Text is the suggestion content.
	Text string

	// Confidence is carried over from the transcription confidence of the
	// utterance that triggered it.
	Confidence float64

	// Topic is the utterance's subject classification.
	Topic Topic

	// Source is the filename of the KB document backing the suggestion.
	// Empty when no KB context was used.
	Source string

	// KBMatched reports whether knowledge-base retrieval found relevant
	// context.
	KBMatched bool

	// GeneratedAt is when the suggestion was produced.
	GeneratedAt time.Time
}

// Outcome is the tagged result of handling one utterance.
type Outcome struct {
	Kind OutcomeKind

	// Suggestion is set when Kind is OutcomeSuggestion.
	Suggestion *Suggestion

	// Reason is set when Kind is OutcomeRejected.
	Reason RejectionReason

	// Err is set when Kind is OutcomeError.
	Err error
}

// Utterance is one flushed transcript segment offered to the session.
type Utterance struct {
	Text       string
	Speaker    string
	Confidence float64
}

// Retriever is the slice of the KB engine a session needs. *kb.Engine
// satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, documentIDs []string) (*kb.Result, error)
}

// Persona is the active coaching persona for a session.
type Persona struct {
	ID           string
	Name         string
	SystemPrompt string

	// DocumentIDs scopes KB retrieval. Empty means every complete document.
	DocumentIDs []string
}

// Session coordinates suggestion generation for one live call.
//
// Pacing invariants:
//   - at most one generation is in flight at a time
//   - generations are at least the cooldown apart, measured from when a
//     generation starts, so the gap never shrinks when calls are slow
//   - a provider rate limit opens a backoff window during which no
//     generation starts
type Session struct {
	provider  llm.Provider
	retriever Retriever
	persona   Persona
	history   *History
	metrics   *observe.Metrics
	log       *slog.Logger
	now       func() time.Time

	cooldown    time.Duration
	minWords    int
	maxTokens   int
	temperature float64

	mu               sync.Mutex
	generating       bool
	lastSuggestionAt time.Time
	rateLimitedUntil time.Time
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRetriever attaches a KB retriever. Without one, suggestions are
// generated from conversation context alone.
func WithRetriever(r Retriever) SessionOption {
	return func(s *Session) { s.retriever = r }
}

// WithCooldown sets the minimum gap between generations. Non-positive keeps
// the default.
func WithCooldown(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithMinWords sets the minimum utterance word count.
func WithMinWords(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.minWords = n
		}
	}
}

// WithMaxHistory bounds the rolling conversation history.
func WithMaxHistory(n int) SessionOption {
	return func(s *Session) { s.history = NewHistory(n) }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithSessionLogger sets the logger. Defaults to slog.Default.
func WithSessionLogger(log *slog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// withClock overrides the time source. Tests only.
func withClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a Session generating suggestions with provider under
// the given persona.
func NewSession(provider llm.Provider, persona Persona, opts ...SessionOption) *Session {
	s := &Session{
		provider:    provider,
		persona:     persona,
		history:     NewHistory(DefaultMaxHistoryTurns),
		log:         slog.Default(),
		now:         time.Now,
		cooldown:    DefaultCooldown,
		minWords:    DefaultMinWords,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// History exposes the session's conversation history.
func (s *Session) History() *History {
	return s.history
}

// HandleUtterance runs one utterance through admission, retrieval, and
// generation, and returns the tagged outcome. Rejected utterances still
// enter the conversation history so later suggestions keep full context.
func (s *Session) HandleUtterance(ctx context.Context, u Utterance) Outcome {
	start := s.now()
	text := strings.TrimSpace(u.Text)

	s.history.Add(llm.RoleUser, text)

	if reason, ok := s.admit(text); !ok {
		s.metrics.RecordAdmissionRejection(ctx, string(reason))
		s.log.Debug("utterance rejected",
			"reason", reason,
			"speaker", u.Speaker,
			"words", len(strings.Fields(text)),
		)
		return Outcome{Kind: OutcomeRejected, Reason: reason}
	}
	// admit set the in-flight flag; everything below must release it.
	defer func() {
		s.mu.Lock()
		s.generating = false
		s.mu.Unlock()
	}()

	topic := ClassifyTopic(text)
	kbRes := s.retrieve(ctx, text)

	req := llm.Request{
		Turns:        s.history.Turns(),
		SystemPrompt: s.buildSystemPrompt(topic, kbRes),
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
	}

	llmStart := s.now()
	resp, err := s.provider.Generate(ctx, req)
	s.metrics.LLMDuration.Record(ctx, s.now().Sub(llmStart).Seconds())
	if err != nil {
		return s.generationFailed(ctx, err)
	}
	s.metrics.RecordProviderRequest(ctx, s.provider.Name(), "llm", "ok")

	if llm.IsSilence(resp.Text) {
		s.metrics.RecordSuggestion(ctx, s.persona.ID, "silence")
		s.log.Debug("model chose silence", "topic", topic)
		return Outcome{Kind: OutcomeSilence}
	}

	sug := &Suggestion{
		Text:        strings.TrimSpace(resp.Text),
		Confidence:  u.Confidence,
		Topic:       topic,
		GeneratedAt: s.now(),
	}
	if kbRes != nil && kbRes.Matched {
		sug.KBMatched = true
		sug.Source = kbRes.Source
	}

	s.history.Add(llm.RoleAssistant, sug.Text)
	s.metrics.RecordSuggestion(ctx, s.persona.ID, "suggestion")
	s.metrics.SuggestionDuration.Record(ctx, s.now().Sub(start).Seconds())
	s.log.Info("suggestion generated",
		"persona", s.persona.ID,
		"topic", topic,
		"kb_matched", sug.KBMatched,
		"source", sug.Source,
		"duration", s.now().Sub(start),
	)
	return Outcome{Kind: OutcomeSuggestion, Suggestion: sug}
}

// admit applies the throttle rules in order and, on success, marks a
// generation as started. The start timestamp is taken before the provider
// call and is never rolled back, so a failed generation still consumes the
// cooldown.
func (s *Session) admit(text string) (RejectionReason, bool) {
	if len(strings.Fields(text)) < s.minWords {
		return ReasonTooShort, false
	}
	if !IsActionable(text) {
		return ReasonNotActionable, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.generating {
		return ReasonOverlap, false
	}
	if now.Before(s.rateLimitedUntil) {
		return ReasonRateLimited, false
	}
	if !s.lastSuggestionAt.IsZero() && now.Sub(s.lastSuggestionAt) < s.cooldown {
		return ReasonCooldown, false
	}

	s.generating = true
	s.lastSuggestionAt = now
	return "", true
}

// retrieve runs persona-scoped KB retrieval. Retrieval failure degrades to
// no context rather than blocking the suggestion.
func (s *Session) retrieve(ctx context.Context, query string) *kb.Result {
	if s.retriever == nil {
		return nil
	}

	start := s.now()
	res, err := s.retriever.Search(ctx, query, s.persona.DocumentIDs)
	s.metrics.RetrievalDuration.Record(ctx, s.now().Sub(start).Seconds())
	if err != nil {
		s.log.Warn("kb retrieval failed, continuing without context", "error", err)
		return nil
	}
	return res
}

// generationFailed classifies a provider error, opening the backoff window
// for rate limits.
func (s *Session) generationFailed(ctx context.Context, err error) Outcome {
	s.metrics.RecordProviderError(ctx, s.provider.Name(), "llm")
	s.metrics.RecordSuggestion(ctx, s.persona.ID, "error")

	var rle *llm.RateLimitError
	if errors.As(err, &rle) {
		backoff := rle.RetryAfter
		if backoff <= 0 {
			backoff = llm.DefaultBackoff
		}
		s.mu.Lock()
		s.rateLimitedUntil = s.now().Add(backoff)
		s.mu.Unlock()
		s.log.Warn("provider rate limited, backing off",
			"provider", rle.Provider,
			"backoff", backoff,
		)
	} else {
		s.log.Error("suggestion generation failed", "error", err)
	}
	return Outcome{Kind: OutcomeError, Err: fmt.Errorf("coach: generate suggestion: %w", err)}
}

// buildSystemPrompt assembles the persona prompt with topic steering and any
// retrieved KB context.
func (s *Session) buildSystemPrompt(topic Topic, kbRes *kb.Result) string {
	var b strings.Builder
	b.WriteString(s.persona.SystemPrompt)

	if topic != TopicGeneral {
		fmt.Fprintf(&b, "\n\nThe customer's last utterance is about: %s.", topic)
	}

	if kbRes != nil && kbRes.Matched {
		b.WriteString("\n\nRelevant knowledge base material:\n")
		b.WriteString(kbRes.Context())
		b.WriteString("\nGround your suggestion in this material and cite nothing else.")
	}

	b.WriteString("\n\nIf no suggestion would genuinely help the rep right now, reply with exactly \"---\".")
	return b.String()
}
