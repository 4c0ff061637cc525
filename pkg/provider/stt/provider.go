// Package stt defines the transcript event model and the Provider interface
// for streaming speech-to-text backends.
//
// The suggestion pipeline does not transcribe audio itself; it either receives
// ready-made transcript [Event] values from an external collaborator or relays
// raw audio to a Provider and consumes the events the provider emits.
package stt

import "context"

// StreamConfig carries per-stream transcription parameters.
type StreamConfig struct {
	// SampleRate is the PCM sample rate in Hz (e.g., 16000).
	SampleRate int

	// Channels is the number of audio channels. Zero means mono.
	Channels int

	// Language is the BCP-47 language code (e.g., "en"). Empty uses the
	// provider default.
	Language string

	// Keywords boosts recognition of domain terms (product names, personas).
	Keywords []string
}

// SessionHandle is a live transcription stream.
//
// Implementations must close the Events channel when the stream ends, either
// because Close was called, the upstream connection dropped, or the context
// passed to StartStream was cancelled.
type SessionHandle interface {
	// SendAudio submits a chunk of raw PCM audio for transcription.
	// It must not block indefinitely; implementations may drop audio when
	// their internal buffer is full.
	SendAudio(chunk []byte) error

	// Events returns the channel of transcript events for this stream.
	Events() <-chan Event

	// Close flushes pending audio and shuts the stream down.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a streaming transcription session.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
