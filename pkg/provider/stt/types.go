package stt

// Event is a single transcript event emitted by a streaming STT backend.
//
// Deepgram-style endpointing produces three flavours of event:
//
//   - interim: IsFinal == false. The text is a live, unstable preview and may
//     be rewritten by later events.
//   - final segment: IsFinal == true, SpeechFinal == false. The text for this
//     audio span is authoritative, but the speaker may still be mid-sentence.
//   - speech final: IsFinal == true, SpeechFinal == true. The backend detected
//     an utterance boundary (silence after speech).
type Event struct {
	// Text is the transcribed text for this event.
	Text string

	// Speaker identifies the speaker when diarization is enabled.
	// Empty when the backend does not distinguish speakers.
	Speaker string

	// IsFinal indicates whether this segment's text is authoritative or a
	// live interim preview.
	IsFinal bool

	// SpeechFinal indicates the backend detected the end of an utterance.
	// Only meaningful when IsFinal is true.
	SpeechFinal bool

	// Confidence is the backend's confidence in Text, in [0, 1].
	Confidence float64

	// TimestampMs is the event time in Unix milliseconds.
	TimestampMs int64
}
