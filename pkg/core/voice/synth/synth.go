// Package synth defines the speech synthesis port. The gateway models the
// speaking phase of a voice turn but does not implement a synthesis engine;
// deployments plug one in behind this interface.
package synth

import "context"

// Synthesizer turns agent text into a stream of audio chunks. The returned
// channel is closed when synthesis finishes or the context is canceled.
type Synthesizer interface {
	// Name returns the synthesizer identifier.
	Name() string

	// Synthesize streams audio for the given text.
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
}

// Noop is the default synthesizer: it produces no audio, so voice turns
// complete immediately after the agent text is delivered.
type Noop struct{}

// Name returns the synthesizer identifier.
func (Noop) Name() string { return "noop" }

// Synthesize returns an already-closed stream.
func (Noop) Synthesize(ctx context.Context, _ string) (<-chan []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}
