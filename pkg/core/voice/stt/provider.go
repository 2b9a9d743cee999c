// Package stt provides streaming speech-to-text.
package stt

import "context"

// Provider is the transcription port. Implementations open live websocket
// sessions that accept raw audio and emit transcript events.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// NewLiveSession opens a streaming transcription session.
	NewLiveSession(ctx context.Context, opts LiveOptions) (LiveSession, error)
}

// LiveOptions configures a streaming transcription session.
type LiveOptions struct {
	Model      string // Provider-specific model
	Language   string // ISO language code (default: "en")
	Encoding   string // Raw audio encoding (default: "linear16")
	SampleRate int    // Audio sample rate in Hz (default: 16000)
}

// LiveSession is one open transcription stream. At most one live session
// exists per connection; the owner must Close it before opening another.
type LiveSession interface {
	// SendAudio forwards raw audio bytes.
	SendAudio(data []byte) error

	// Finalize flushes buffered audio and asks the provider to emit a final
	// hypothesis for the current utterance. The session stays open.
	Finalize() error

	// Events returns the transcript event channel. It is closed when the
	// session ends.
	Events() <-chan TranscriptEvent

	// Close tears down the session.
	Close() error
}

// TranscriptEvent is one incremental transcription update. Text is a full
// restatement of the provider's current hypothesis, not a delta, and may
// grow, shrink, or be corrected between events.
type TranscriptEvent struct {
	Text      string
	FinalHint bool // provider's own (not fully trusted) end-of-segment signal
}
