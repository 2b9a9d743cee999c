package session

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/frontdesk-ai/frontdesk/pkg/gateway/booking"
)

// BookingPlaceholderMessage replaces streamed output once a turn is
// suspected to be a booking action, so the raw JSON never reaches the
// client.
const BookingPlaceholderMessage = "Give me one moment while I get that booked for you."

const bookingActionName = "book_appointment"

// bookingFilter classifies a streaming completion as prose or a booking
// action as early as possible. Tokens are buffered until the first
// non-whitespace character arrives; a leading '{' flips the filter into
// suppress mode for the rest of the turn.
type bookingFilter struct {
	buf             strings.Builder
	decided         bool
	suppress        bool
	placeholderSent bool
}

// Feed consumes one token. forward is text to deliver to the client now
// (empty while undecided or suppressing); placeholder is true exactly once,
// on the token that tips the turn into suspected-booking.
func (f *bookingFilter) Feed(token string) (forward string, placeholder bool) {
	if f.decided {
		if f.suppress {
			return "", false
		}
		return token, false
	}
	f.buf.WriteString(token)
	buffered := f.buf.String()
	first, ok := firstNonSpace(buffered)
	if !ok {
		return "", false
	}
	f.decided = true
	if first == '{' {
		f.suppress = true
		f.placeholderSent = true
		return "", true
	}
	return buffered, false
}

// Suppressing reports whether the turn was classified as a booking action.
func (f *bookingFilter) Suppressing() bool { return f.suppress }

func firstNonSpace(s string) (rune, bool) {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return r, true
		}
	}
	return 0, false
}

type bookingEnvelope struct {
	Action  string `json:"action"`
	Payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Date     string `json:"date"`
		Time     string `json:"time"`
		Notes    string `json:"notes"`
		Timezone string `json:"timezone"`
	} `json:"payload"`
}

// parseBookingIntent inspects a completed response for the booking action.
// matched is false when the text is not a well-formed booking object, in
// which case the caller forwards the text as ordinary agent output. A
// matched request may still fail Validate.
func parseBookingIntent(text string) (booking.Request, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return booking.Request{}, false
	}
	if !strings.Contains(trimmed, `"action"`) {
		return booking.Request{}, false
	}
	var env bookingEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return booking.Request{}, false
	}
	if env.Action != bookingActionName {
		return booking.Request{}, false
	}
	return booking.Request{
		Name:     env.Payload.Name,
		Email:    env.Payload.Email,
		Date:     env.Payload.Date,
		Time:     env.Payload.Time,
		Notes:    env.Payload.Notes,
		Timezone: env.Payload.Timezone,
	}, true
}
