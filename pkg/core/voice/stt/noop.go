package stt

import (
	"context"
	"sync"
)

// NoopProvider is the degraded transcription port used when no STT
// credentials are configured. Sessions accept audio and never emit
// transcripts, so voice input silently does nothing while chat still works.
type NoopProvider struct{}

// NewNoop creates the placeholder provider.
func NewNoop() *NoopProvider { return &NoopProvider{} }

// Name returns the provider identifier.
func (*NoopProvider) Name() string { return "noop" }

// NewLiveSession opens a session that discards audio.
func (*NoopProvider) NewLiveSession(ctx context.Context, _ LiveOptions) (LiveSession, error) {
	s := &noopSession{
		events: make(chan TranscriptEvent),
		done:   make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		close(s.events)
	}()
	return s, nil
}

type noopSession struct {
	events    chan TranscriptEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (*noopSession) SendAudio([]byte) error { return nil }

func (*noopSession) Finalize() error { return nil }

func (s *noopSession) Events() <-chan TranscriptEvent { return s.events }

func (s *noopSession) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
