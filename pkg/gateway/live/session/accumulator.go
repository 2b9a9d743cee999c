package session

import (
	"strings"
	"time"
	"unicode"
)

// Empirical constants from the transcript heuristic. A merged transcript
// shorter than NewUtteranceLengthRatio of the last-sent one (with no prefix
// containment and no shared leading character) is treated as the start of a
// new utterance; EdgeOverlapChars is the window compared when deciding
// whether a shorter disjoint hypothesis is a separate speech segment.
const (
	DefaultNewUtteranceLengthRatio = 0.5
	DefaultEdgeOverlapChars        = 10
)

// AccumulatorConfig tunes the merge heuristics.
type AccumulatorConfig struct {
	NewUtteranceLengthRatio float64
	EdgeOverlapChars        int
}

func (c AccumulatorConfig) withDefaults() AccumulatorConfig {
	if c.NewUtteranceLengthRatio <= 0 {
		c.NewUtteranceLengthRatio = DefaultNewUtteranceLengthRatio
	}
	if c.EdgeOverlapChars <= 0 {
		c.EdgeOverlapChars = DefaultEdgeOverlapChars
	}
	return c
}

// transcriptAccumulator maintains the one evolving pending transcript per
// recording session. The transcription provider re-emits full hypotheses
// that can grow, shrink, or get corrected mid-word; merge reconciles each
// restatement with what has accumulated so far.
type transcriptAccumulator struct {
	cfg AccumulatorConfig

	pending     string
	lastSent    string
	lastEventAt time.Time

	finalHint   bool
	finalHintAt time.Time
}

func newTranscriptAccumulator(cfg AccumulatorConfig) *transcriptAccumulator {
	return &transcriptAccumulator{cfg: cfg.withDefaults()}
}

// Observe folds one transcript event into the pending transcript. It
// returns the merged text and whether the event looks like the start of a
// new utterance rather than an in-place update of the current one.
func (a *transcriptAccumulator) Observe(text string, finalHint bool, now time.Time) (merged string, newUtterance bool) {
	incoming := strings.TrimSpace(text)
	merged = mergeTranscripts(a.pending, incoming, a.cfg.EdgeOverlapChars)
	newUtterance = a.isNewUtterance(merged)
	if newUtterance {
		// A fresh utterance restarts endpointing: any hint from the previous
		// one no longer applies.
		a.finalHint = false
		a.finalHintAt = time.Time{}
	}
	if finalHint {
		a.finalHint = true
		a.finalHintAt = now
	}
	a.pending = merged
	a.lastEventAt = now
	return merged, newUtterance
}

func (a *transcriptAccumulator) isNewUtterance(merged string) bool {
	last := a.lastSent
	if strings.TrimSpace(last) == "" {
		return true
	}
	if float64(len(merged)) >= float64(len(last))*a.cfg.NewUtteranceLengthRatio {
		return false
	}
	prefixLen := a.cfg.EdgeOverlapChars
	if prefixLen > len(last) {
		prefixLen = len(last)
	}
	lowMerged := strings.ToLower(merged)
	lowPrefix := strings.ToLower(last[:prefixLen])
	if strings.Contains(lowMerged, lowPrefix) {
		return false
	}
	if sharesLeadingRune(merged, last) {
		return false
	}
	return true
}

// MarkSent records the transcript last forwarded to the far end, used for
// frame de-duplication and new-utterance detection.
func (a *transcriptAccumulator) MarkSent(text string) { a.lastSent = text }

// Pending returns the current pending transcript.
func (a *transcriptAccumulator) Pending() string { return a.pending }

// LastSent returns the transcript last forwarded to the far end.
func (a *transcriptAccumulator) LastSent() string { return a.lastSent }

// LastEventAt returns the timestamp of the most recent transcript event.
func (a *transcriptAccumulator) LastEventAt() time.Time { return a.lastEventAt }

// FinalHint reports whether the provider hinted the current segment is
// complete, and when the hint arrived.
func (a *transcriptAccumulator) FinalHint() (bool, time.Time) {
	return a.finalHint, a.finalHintAt
}

// ResetFinalHint drops the provider hint. Called when the transcript grows
// after the hint, which means the speaker kept going.
func (a *transcriptAccumulator) ResetFinalHint() {
	a.finalHint = false
	a.finalHintAt = time.Time{}
}

// Reset clears all accumulator state. Called on finalize, stop_recording,
// and disconnect.
func (a *transcriptAccumulator) Reset() {
	a.pending = ""
	a.lastSent = ""
	a.lastEventAt = time.Time{}
	a.finalHint = false
	a.finalHintAt = time.Time{}
}

// mergeTranscripts reconciles a full restated hypothesis with the pending
// transcript. Naive replace loses earlier complete clauses and naive append
// duplicates content, so the rules below arbitrate by length and
// case-insensitive containment, on trimmed strings:
//
//	extension of the same utterance        -> take incoming
//	longer and fully disjoint              -> append as a new segment
//	longer otherwise                       -> longer hypothesis supersedes
//	in-place correction (same length)      -> take incoming
//	pending already more complete          -> keep pending
//	shorter and disjoint                   -> append only when the edges
//	                                          do not overlap, else keep
//
// Known limitation: the containment heuristics occasionally mis-segment
// (e.g. a corrected restatement that rewrites the first words is treated as
// a continuation). That behavior is intentional and covered by tests.
func mergeTranscripts(pending, incoming string, edgeOverlapChars int) string {
	p := strings.TrimSpace(pending)
	in := strings.TrimSpace(incoming)
	if p == "" {
		return in
	}

	lowPending := strings.ToLower(p)
	lowIncoming := strings.ToLower(in)
	newContainsOld := strings.Contains(lowIncoming, lowPending)
	oldContainsNew := strings.Contains(lowPending, lowIncoming)

	switch {
	case len(in) > len(p) && newContainsOld:
		return in
	case len(in) > len(p) && !newContainsOld && !oldContainsNew:
		return p + " " + in
	case len(in) > len(p):
		return in
	case newContainsOld && len(in) >= len(p):
		return in
	case oldContainsNew && len(p) > len(in):
		return p
	case len(in) == len(p) && in != p && newContainsOld:
		return in
	case len(in) < len(p) && !newContainsOld && !oldContainsNew:
		if !edgesOverlap(lowPending, lowIncoming, edgeOverlapChars) {
			return p + " " + in
		}
		return p
	default:
		return p
	}
}

// edgesOverlap compares the tail of the pending transcript against the head
// of the incoming one. Any shared material in those windows means the
// shorter hypothesis is a re-read of the utterance edge, not new speech.
func edgesOverlap(lowPending, lowIncoming string, window int) bool {
	if window <= 0 {
		window = DefaultEdgeOverlapChars
	}
	tail := lowPending
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}
	head := lowIncoming
	if len(head) > window {
		head = head[:window]
	}
	tail = strings.TrimSpace(tail)
	head = strings.TrimSpace(head)
	if tail == "" || head == "" {
		return false
	}
	return strings.Contains(tail, head) || strings.Contains(head, tail)
}

func sharesLeadingRune(a, b string) bool {
	ra := leadingRune(a)
	rb := leadingRune(b)
	if ra == 0 || rb == 0 {
		return false
	}
	return unicode.ToLower(ra) == unicode.ToLower(rb)
}

func leadingRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
