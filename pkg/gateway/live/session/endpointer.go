package session

import (
	"time"
)

// Endpointing defaults. The engine decides when the speaker is done on a
// fixed 100ms tick, independent of audio or event arrival.
const (
	DefaultSilenceThreshold      = 5000 * time.Millisecond
	DefaultFinalTranscriptBuffer = 1500 * time.Millisecond
	DefaultWaitAfterFinal        = 2000 * time.Millisecond
	DefaultMaxFinalizeWait       = 5000 * time.Millisecond
	DefaultEndpointTick          = 100 * time.Millisecond
)

// EndpointerConfig tunes the silence-based finalize timings.
type EndpointerConfig struct {
	SilenceThreshold      time.Duration
	FinalTranscriptBuffer time.Duration
	WaitAfterFinal        time.Duration
	MaxFinalizeWait       time.Duration
	Tick                  time.Duration
}

func (c EndpointerConfig) withDefaults() EndpointerConfig {
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.FinalTranscriptBuffer <= 0 {
		c.FinalTranscriptBuffer = DefaultFinalTranscriptBuffer
	}
	if c.WaitAfterFinal <= 0 {
		c.WaitAfterFinal = DefaultWaitAfterFinal
	}
	if c.MaxFinalizeWait <= 0 {
		c.MaxFinalizeWait = DefaultMaxFinalizeWait
	}
	if c.Tick <= 0 {
		c.Tick = DefaultEndpointTick
	}
	return c
}

type endpointPhase int

const (
	phaseArmed endpointPhase = iota
	phaseBuffering
)

// endpointer turns the evolving pending transcript into at most one
// finalized turn per utterance. It is driven exclusively by Tick, so the
// decision sequence is deterministic for a given tick/event interleaving.
//
// Armed: watching for silence. Once the pending transcript has gone
// SilenceThreshold without an update, snapshot it and enter Buffering.
// Buffering: hold the snapshot for FinalTranscriptBuffer in case a late
// correction arrives. Growth restarts the hold. A provider final hint
// shortens the wait to WaitAfterFinal from the hint; MaxFinalizeWait caps
// the total hold regardless.
type endpointer struct {
	cfg EndpointerConfig

	phase       endpointPhase
	snapshot    string
	snapshotLen int
	bufferStart time.Time

	lastFinalized string
}

func newEndpointer(cfg EndpointerConfig) *endpointer {
	return &endpointer{cfg: cfg.withDefaults()}
}

// Tick advances the endpointing state machine. It returns the finalized
// transcript and true exactly when an utterance should be committed as a
// user turn on this tick.
func (e *endpointer) Tick(now time.Time, acc *transcriptAccumulator) (string, bool) {
	switch e.phase {
	case phaseArmed:
		pending := acc.Pending()
		if isBlank(pending) {
			return "", false
		}
		last := acc.LastEventAt()
		if last.IsZero() || now.Sub(last) < e.cfg.SilenceThreshold {
			return "", false
		}
		e.snapshot = pending
		e.snapshotLen = len(pending)
		e.bufferStart = now
		e.phase = phaseBuffering
		return "", false

	case phaseBuffering:
		current := acc.Pending()
		if len(current) > e.snapshotLen {
			// Late growth means the speaker kept going. Restart the hold and
			// drop any stale provider hint.
			e.snapshot = current
			e.snapshotLen = len(current)
			e.bufferStart = now
			acc.ResetFinalHint()
			return "", false
		}
		elapsed := now.Sub(e.bufferStart)
		hinted, hintedAt := acc.FinalHint()
		if hinted {
			if now.Sub(hintedAt) >= e.cfg.WaitAfterFinal || elapsed >= e.cfg.MaxFinalizeWait {
				return e.finalize(acc)
			}
			return "", false
		}
		if elapsed >= e.cfg.FinalTranscriptBuffer || elapsed >= e.cfg.MaxFinalizeWait {
			return e.finalize(acc)
		}
		return "", false
	}
	return "", false
}

// ForceFinalize commits whatever transcript is pending right now,
// regardless of phase. Used on stop_recording and disconnect.
func (e *endpointer) ForceFinalize(acc *transcriptAccumulator) (string, bool) {
	if e.phase == phaseArmed {
		e.snapshot = acc.Pending()
	}
	return e.finalize(acc)
}

// Rearm abandons any pending finalize. Called when a new utterance starts
// before the buffered one was committed.
func (e *endpointer) Rearm() {
	e.phase = phaseArmed
	e.snapshot = ""
	e.snapshotLen = 0
	e.bufferStart = time.Time{}
}

func (e *endpointer) finalize(acc *transcriptAccumulator) (string, bool) {
	// The live pending text wins over the snapshot when both exist; the
	// snapshot covers the case where pending was corrected down to empty.
	text := acc.Pending()
	if isBlank(text) {
		text = e.snapshot
	}
	acc.Reset()
	e.Rearm()
	if isBlank(text) {
		return "", false
	}
	if text == e.lastFinalized {
		// Duplicate of the previous commit. Rearm without re-submitting.
		return "", false
	}
	e.lastFinalized = text
	return text, true
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
