package server

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/metric"

	"github.com/AntoineDubuc/wingman-ai-sub005/internal/coach"
	"github.com/AntoineDubuc/wingman-ai-sub005/internal/endpoint"
	"github.com/AntoineDubuc/wingman-ai-sub005/internal/observe"
	"github.com/AntoineDubuc/wingman-ai-sub005/internal/transcript"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/stt"
)

// maxMessageBytes bounds one WebSocket message. Base64 audio chunks are the
// largest legitimate payload.
const maxMessageBytes = 1 << 20

// Client-to-server message types.
const (
	msgTranscript = "transcript"
	msgAudioChunk = "audio_chunk"
	msgSummarize  = "summarize"
)

// Server-to-client message types.
const (
	msgInterim    = "interim"
	msgUtterance  = "utterance"
	msgSuggestion = "suggestion"
	msgSummary    = "summary"
	msgError      = "error"
)

// clientMessage is the envelope for everything a client sends.
type clientMessage struct {
	Type string `json:"type"`

	// Transcript event fields (type "transcript").
	Text        string  `json:"text,omitempty"`
	Speaker     string  `json:"speaker,omitempty"`
	IsFinal     bool    `json:"is_final,omitempty"`
	SpeechFinal bool    `json:"speech_final,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`

	// Raw audio fields (type "audio_chunk").
	Audio      string `json:"audio,omitempty"` // base64 PCM
	SampleRate int    `json:"sample_rate,omitempty"`
}

// serverMessage is the envelope for everything the server pushes.
type serverMessage struct {
	Type string `json:"type"`

	Text       string  `json:"text,omitempty"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Trigger    string  `json:"trigger,omitempty"`

	// Suggestion fields.
	Topic     string `json:"topic,omitempty"`
	Source    string `json:"source,omitempty"`
	KBMatched bool   `json:"kb_matched,omitempty"`

	Summary *coach.Summary `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// handleSession upgrades the connection and runs one coaching session for
// its lifetime. The persona is selected via the "persona" query parameter at
// connect time and is fixed for the session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	persona, err := s.resolvePersona(r.URL.Query().Get("persona"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx := r.Context()
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)

	log := observe.Logger(ctx).With("persona", persona.ID)
	log.Info("session connected", "remote", r.RemoteAddr)

	ws := &wsSession{
		srv:     s,
		conn:    conn,
		persona: persona,
		log:     log,
		out:     make(chan serverMessage, 32),
	}
	ws.run(ctx)

	log.Info("session closed")
}

// wsSession is the per-connection state: one endpointing machine, one coach
// session, and an optional relay to the STT provider.
type wsSession struct {
	srv     *Server
	conn    *websocket.Conn
	persona coach.Persona
	log     *slog.Logger

	coach     *coach.Session
	machine   *endpoint.Machine
	corrector *transcript.Corrector
	keywords  []string

	// out is drained by a single writer goroutine; wsjson.Write is not safe
	// for concurrent writers.
	out chan serverMessage

	sttSession stt.SessionHandle
}

// run executes the session until the client disconnects or ctx ends. Exit
// cancels the per-connection context, which actively aborts any in-flight
// provider call rather than letting it finish in the background; either way
// its result has nowhere to go once the connection is gone.
func (ws *wsSession) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ws.conn.CloseNow()

	go ws.writeLoop(ctx)

	ws.keywords = ws.srv.documentKeywords(ctx)
	ws.corrector = transcript.New(ws.keywords)

	opts := []coach.SessionOption{
		coach.WithCooldown(ws.srv.tuning.Cooldown),
		coach.WithMinWords(ws.srv.tuning.MinUtteranceWords),
		coach.WithMetrics(ws.srv.metrics),
		coach.WithSessionLogger(ws.log),
	}
	if ws.srv.tuning.MaxHistoryTurns > 0 {
		opts = append(opts, coach.WithMaxHistory(ws.srv.tuning.MaxHistoryTurns))
	}
	if ws.srv.engine != nil {
		opts = append(opts, coach.WithRetriever(ws.srv.engine))
	}
	ws.coach = coach.NewSession(ws.srv.llm, ws.persona, opts...)

	ws.machine = endpoint.NewMachine(ws.flushed(ctx),
		endpoint.WithFallback(ws.srv.tuning.EndpointFallback),
		endpoint.WithOnInterim(func(text, speaker string) {
			ws.send(ctx, serverMessage{Type: msgInterim, Text: text, Speaker: speaker})
		}),
		endpoint.WithLogger(ws.log),
	)
	defer ws.machine.Close()
	defer ws.closeSTT()

	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, ws.conn, &msg); err != nil {
			// Normal close or network drop; either way the session is over.
			return
		}

		switch msg.Type {
		case msgTranscript:
			ws.machine.Observe(stt.Event{
				Text:        msg.Text,
				Speaker:     msg.Speaker,
				IsFinal:     msg.IsFinal,
				SpeechFinal: msg.SpeechFinal,
				Confidence:  msg.Confidence,
				TimestampMs: time.Now().UnixMilli(),
			})

		case msgAudioChunk:
			ws.handleAudio(ctx, msg)

		case msgSummarize:
			go ws.summarize(ctx)

		default:
			ws.send(ctx, serverMessage{Type: msgError, Error: "unknown message type " + msg.Type})
		}
	}
}

// writeLoop is the sole writer on the socket.
func (ws *wsSession) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ws.out:
			if err := wsjson.Write(ctx, ws.conn, msg); err != nil {
				return
			}
		}
	}
}

// send queues a message for the writer. Messages are dropped once the
// session is over.
func (ws *wsSession) send(ctx context.Context, msg serverMessage) {
	select {
	case ws.out <- msg:
	case <-ctx.Done():
	}
}

// flushed returns the endpointing flush callback: repair the utterance
// text, surface it to the client, and hand it to the coach asynchronously so
// transcript events keep flowing while a generation is in flight.
func (ws *wsSession) flushed(ctx context.Context) func(endpoint.Flush) {
	return func(f endpoint.Flush) {
		ws.srv.metrics.Utterances.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("flush", string(f.Trigger))))
		ws.srv.metrics.STTDuration.Record(ctx, time.Since(f.StartedAt).Seconds())

		text, repaired := ws.corrector.Correct(f.Text)
		if repaired > 0 {
			ws.log.Debug("utterance keywords repaired", "count", repaired)
		}

		ws.send(ctx, serverMessage{
			Type:       msgUtterance,
			Text:       text,
			Speaker:    f.Speaker,
			Confidence: f.Confidence,
			Trigger:    string(f.Trigger),
		})

		go func() {
			out := ws.coach.HandleUtterance(ctx, coach.Utterance{
				Text:       text,
				Speaker:    f.Speaker,
				Confidence: f.Confidence,
			})
			if out.Kind != coach.OutcomeSuggestion {
				// Silence and rejections suppress output; errors are
				// already logged and counted by the coach.
				return
			}
			sug := out.Suggestion
			ws.send(ctx, serverMessage{
				Type:       msgSuggestion,
				Text:       sug.Text,
				Confidence: sug.Confidence,
				Topic:      string(sug.Topic),
				Source:     sug.Source,
				KBMatched:  sug.KBMatched,
			})
		}()
	}
}

// handleAudio relays a base64 PCM chunk to the STT provider, lazily opening
// the stream on the first chunk. Transcript events flow into the same
// endpointing machine as client-pushed transcripts.
func (ws *wsSession) handleAudio(ctx context.Context, msg clientMessage) {
	if ws.srv.stt == nil {
		ws.send(ctx, serverMessage{Type: msgError, Error: "no STT provider configured; push transcript events instead"})
		return
	}

	if ws.sttSession == nil {
		sess, err := ws.srv.stt.StartStream(ctx, stt.StreamConfig{
			SampleRate: msg.SampleRate,
			Keywords:   ws.keywords,
		})
		if err != nil {
			ws.log.Error("failed to start STT stream", "error", err)
			ws.send(ctx, serverMessage{Type: msgError, Error: "transcription stream failed to start"})
			return
		}
		ws.sttSession = sess
		go func() {
			for ev := range sess.Events() {
				ws.machine.Observe(ev)
			}
		}()
	}

	data, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		ws.send(ctx, serverMessage{Type: msgError, Error: "audio is not valid base64"})
		return
	}
	if err := ws.sttSession.SendAudio(data); err != nil {
		ws.log.Warn("audio relay failed", "error", err)
	}
}

// summarize asks the coach for a structured recap and pushes it back.
func (ws *wsSession) summarize(ctx context.Context) {
	sum, err := ws.coach.Summarize(ctx)
	if err != nil {
		ws.log.Error("summary failed", "error", err)
		ws.send(ctx, serverMessage{Type: msgError, Error: "summary generation failed"})
		return
	}
	ws.send(ctx, serverMessage{Type: msgSummary, Summary: sum})
}

// closeSTT shuts down the relay stream, if one was opened.
func (ws *wsSession) closeSTT() {
	if ws.sttSession != nil {
		_ = ws.sttSession.Close()
	}
}

// documentKeywords derives the phonetic-correction vocabulary from the KB
// document filenames. Best effort; a failing store just means no correction.
func (s *Server) documentKeywords(ctx context.Context) []string {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		s.log.Warn("listing documents for keyword vocabulary failed", "error", err)
		return nil
	}

	keywords := make([]string, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		kw := strings.TrimSuffix(d.Filename, filepath.Ext(d.Filename))
		kw = strings.NewReplacer("-", " ", "_", " ").Replace(kw)
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(kw)]; dup {
			continue
		}
		seen[strings.ToLower(kw)] = struct{}{}
		keywords = append(keywords, kw)
	}
	return keywords
}
