// Package endpoint turns a stream of incremental transcript events into
// discrete utterances.
//
// Speech-to-text backends emit three grades of event: interim previews that
// are still mutating, finalized segments, and finalized segments additionally
// flagged as the end of speech. A Machine accumulates finalized segments and
// flushes the combined utterance either when the backend signals end of
// speech or when a fallback timer expires, whichever comes first. Interim
// previews are surfaced separately and never accumulate.
package endpoint

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/stt"
)

// DefaultFallback is how long an accumulating utterance may wait for an
// end-of-speech signal before being flushed anyway.
const DefaultFallback = 700 * time.Millisecond

// Trigger identifies what caused an utterance to flush.
type Trigger string

const (
	// TriggerSpeechFinal means the backend signalled end of speech.
	TriggerSpeechFinal Trigger = "speech_final"

	// TriggerTimer means the fallback timer expired first.
	TriggerTimer Trigger = "timer"
)

// Flush is one complete utterance handed to the OnFlush callback.
type Flush struct {
	// Text is the accumulated utterance, finalized segments joined in
	// arrival order.
	Text string

	// Speaker is the speaker label of the first accumulated segment.
	Speaker string

	// Confidence is the mean confidence across accumulated segments.
	Confidence float64

	// Trigger is what caused the flush.
	Trigger Trigger

	// StartedAt is when the first segment of this utterance arrived.
	StartedAt time.Time
}

type state int

const (
	stateIdle state = iota
	stateAccumulating
)

// Machine is the endpointing state machine for one transcript stream. It is
// safe for concurrent use; callbacks are invoked without the internal lock
// held and never concurrently with themselves for the same flush.
type Machine struct {
	fallback  time.Duration
	onInterim func(text, speaker string)
	onFlush   func(Flush)
	log       *slog.Logger

	mu        sync.Mutex
	state     state
	parts     []string
	speaker   string
	confSum   float64
	confCount int
	startedAt time.Time
	timer     *time.Timer

	// gen increments on every completed flush. A pending timer callback
	// carries the generation it was armed under and gives up when the
	// machine has moved on, so an utterance can never flush twice.
	gen    uint64
	closed bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithFallback sets the fallback flush timeout. Non-positive values keep the
// default.
func WithFallback(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.fallback = d
		}
	}
}

// WithOnInterim sets the callback for interim preview text.
func WithOnInterim(fn func(text, speaker string)) Option {
	return func(m *Machine) { m.onInterim = fn }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// NewMachine creates a Machine delivering utterances to onFlush.
func NewMachine(onFlush func(Flush), opts ...Option) *Machine {
	m := &Machine{
		fallback: DefaultFallback,
		onFlush:  onFlush,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Observe feeds one transcript event into the machine.
func (m *Machine) Observe(ev stt.Event) {
	text := strings.TrimSpace(ev.Text)

	if !ev.IsFinal {
		if text != "" && m.onInterim != nil {
			m.onInterim(text, ev.Speaker)
		}
		return
	}

	if text == "" {
		// Finalized segments with no text carry nothing worth keeping.
		m.log.Debug("dropping empty finalized transcript event", "speaker", ev.Speaker)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	if m.state == stateIdle {
		m.state = stateAccumulating
		m.startedAt = time.Now()
		m.speaker = ev.Speaker
	}
	m.parts = append(m.parts, text)
	m.confSum += ev.Confidence
	m.confCount++

	if ev.SpeechFinal {
		flush := m.takeLocked(TriggerSpeechFinal)
		m.mu.Unlock()
		m.onFlush(flush)
		return
	}

	m.armTimerLocked()
	m.mu.Unlock()
}

// Close cancels any pending fallback timer. Events observed after Close are
// dropped and nothing further is flushed.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.parts = nil
	m.state = stateIdle
}

// armTimerLocked (re)starts the fallback timer for the current generation.
// Caller holds m.mu.
func (m *Machine) armTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	gen := m.gen
	m.timer = time.AfterFunc(m.fallback, func() {
		m.fireTimer(gen)
	})
}

// fireTimer flushes the accumulated utterance if the machine is still on the
// generation the timer was armed under.
func (m *Machine) fireTimer(gen uint64) {
	m.mu.Lock()
	if m.closed || m.gen != gen || m.state != stateAccumulating {
		m.mu.Unlock()
		return
	}
	flush := m.takeLocked(TriggerTimer)
	m.mu.Unlock()
	m.onFlush(flush)
}

// takeLocked extracts the accumulated utterance and resets the machine to
// idle. Caller holds m.mu.
func (m *Machine) takeLocked(trigger Trigger) Flush {
	flush := Flush{
		Text:      strings.Join(m.parts, " "),
		Speaker:   m.speaker,
		Trigger:   trigger,
		StartedAt: m.startedAt,
	}
	if m.confCount > 0 {
		flush.Confidence = m.confSum / float64(m.confCount)
	}

	m.gen++
	m.state = stateIdle
	m.parts = nil
	m.speaker = ""
	m.confSum = 0
	m.confCount = 0
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	return flush
}
