package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/booking"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/live/protocol"
)

type fakeConn struct {
	fakeWSWriter
	reads chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 16)}
}

func (c *fakeConn) SetReadLimit(int64)                  {}
func (c *fakeConn) SetReadDeadline(time.Time) error     { return nil }
func (c *fakeConn) SetPongHandler(func(string) error)   {}
func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.reads
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return websocket.TextMessage, data, nil
}

func (c *fakeConn) send(t *testing.T, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(protocol.Envelope{Type: typ, Payload: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	c.reads <- frame
}

type fakeProvider struct {
	tokens []string
	err    error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) StreamCompletion(ctx context.Context, _ []types.Message) (core.TokenStream, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &fakeStream{tokens: p.tokens}, nil
}

type fakeStream struct {
	tokens []string
	pos    int
}

func (s *fakeStream) Next() (string, error) {
	if s.pos >= len(s.tokens) {
		return "", io.EOF
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok, nil
}

func (s *fakeStream) Close() error { return nil }

// stallingProvider never produces a token; its stream unblocks only when
// the turn context expires.
type stallingProvider struct{}

func (stallingProvider) Name() string { return "stalling" }

func (stallingProvider) StreamCompletion(ctx context.Context, _ []types.Message) (core.TokenStream, error) {
	return &stallingStream{ctx: ctx}, nil
}

type stallingStream struct{ ctx context.Context }

func (s *stallingStream) Next() (string, error) {
	<-s.ctx.Done()
	return "", s.ctx.Err()
}

func (s *stallingStream) Close() error { return nil }

type fakeBooking struct {
	mu   sync.Mutex
	got  []booking.Request
	fail error
}

func (b *fakeBooking) Name() string { return "fake" }

func (b *fakeBooking) Create(_ context.Context, req booking.Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, req)
	return b.fail
}

func (b *fakeBooking) requests() []booking.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]booking.Request, len(b.got))
	copy(out, b.got)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runTestSession(t *testing.T, conn *fakeConn, deps Dependencies) (stop func()) {
	t.Helper()
	return runTestSessionCfg(t, conn, deps, Config{})
}

func runTestSessionCfg(t *testing.T, conn *fakeConn, deps Dependencies, cfg Config) (stop func()) {
	t.Helper()
	deps.Conn = conn
	if deps.Logger == nil {
		deps.Logger = testLogger()
	}
	sess := New(deps, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("session did not stop")
		}
	}
}

// waitForWrite polls the recorded writes until one matches, or fails the
// test after a deadline.
func waitForWrite(t *testing.T, conn *fakeConn, match func(string) bool) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, w := range conn.snapshot() {
			if match(w.data) {
				return w.data
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected write not observed; writes:\n%s", dumpWrites(conn))
	return ""
}

func dumpWrites(conn *fakeConn) string {
	var b strings.Builder
	for _, w := range conn.snapshot() {
		b.WriteString(w.data)
		b.WriteString("\n")
	}
	return b.String()
}

func TestSession_ChatTurn(t *testing.T) {
	conn := newFakeConn()
	stop := runTestSession(t, conn, Dependencies{
		Provider: &fakeProvider{tokens: []string{"Hello", " there!"}},
	})
	defer stop()

	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"connected"`)
	})

	conn.send(t, protocol.TypeChatMessage, protocol.ClientChatMessage{Text: "hi"})

	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"thinking"`)
	})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"clear":true`)
	})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"token":"Hello there!"`) || strings.Contains(s, `"token":"Hello"`)
	})
	turn := waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"type":"conversation_turn"`)
	})
	if !strings.Contains(turn, `"mode":"chat"`) || !strings.Contains(turn, `"agent":"Hello there!"`) {
		t.Fatalf("conversation_turn = %s", turn)
	}
	// Chat turns skip the speaking phase.
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"idle"`)
	})
	for _, w := range conn.snapshot() {
		if strings.Contains(w.data, `"state":"speaking"`) {
			t.Fatalf("chat turn entered speaking state")
		}
	}
}

func TestSession_ProviderErrorKeepsSessionAlive(t *testing.T) {
	conn := newFakeConn()
	stop := runTestSession(t, conn, Dependencies{
		Provider: &fakeProvider{err: core.NewProviderError("fake", errors.New("boom"))},
	})
	defer stop()

	conn.send(t, protocol.TypeChatMessage, protocol.ClientChatMessage{Text: "hi"})

	turn := waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"type":"conversation_turn"`)
	})
	if !strings.Contains(turn, errorPlaceholderMessage) {
		t.Fatalf("error turn missing placeholder: %s", turn)
	}
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"error"`)
	})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"idle"`)
	})

	// The session is still usable afterwards.
	conn.send(t, protocol.TypeChatMessage, protocol.ClientChatMessage{Text: "still there?"})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"thinking"`)
	})
}

func TestSession_BookingTurnSuppressesJSON(t *testing.T) {
	raw := `{"action":"book_appointment","payload":{"name":"Ada","email":"ada@example.com","date":"2026-09-01","time":"14:00"}}`
	bk := &fakeBooking{}
	conn := newFakeConn()
	stop := runTestSession(t, conn, Dependencies{
		Provider: &fakeProvider{tokens: []string{raw[:20], raw[20:]}},
		Booking:  bk,
	})
	defer stop()

	conn.send(t, protocol.TypeChatMessage, protocol.ClientChatMessage{Text: "book me for sept 1 at 2pm"})

	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, BookingPlaceholderMessage)
	})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, bookingConfirmationMessage)
	})

	reqs := bk.requests()
	if len(reqs) != 1 {
		t.Fatalf("bookings = %d, want 1", len(reqs))
	}
	if reqs[0].Email != "ada@example.com" || reqs[0].Date != "2026-09-01" {
		t.Fatalf("booking request = %+v", reqs[0])
	}

	// The raw JSON must never stream to the client as agent text.
	for _, w := range conn.snapshot() {
		if strings.Contains(w.data, `"type":"agent_text"`) && strings.Contains(w.data, "book_appointment") {
			t.Fatalf("raw booking JSON leaked into agent text: %s", w.data)
		}
	}
}

func TestSession_BookingParseFailureForwardsText(t *testing.T) {
	// Looks like JSON at first, but is not a booking action.
	raw := `{"note":"we are open nine to five"}`
	conn := newFakeConn()
	stop := runTestSession(t, conn, Dependencies{
		Provider: &fakeProvider{tokens: []string{raw}},
	})
	defer stop()

	conn.send(t, protocol.TypeChatMessage, protocol.ClientChatMessage{Text: "hours?"})

	// The full text arrives as ordinary agent output after completion.
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"type":"agent_text"`) && strings.Contains(s, "nine to five")
	})
}

func TestSession_InterruptDropsLateOutput(t *testing.T) {
	conn := newFakeConn()
	stop := runTestSession(t, conn, Dependencies{
		Provider: &fakeProvider{tokens: []string{"slow answer"}},
	})
	defer stop()

	conn.send(t, protocol.TypeChatMessage, protocol.ClientChatMessage{Text: "hi"})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"thinking"`)
	})
	conn.send(t, protocol.TypeInterrupt, struct{}{})

	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"interrupted"`)
	})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"idle"`)
	})
}

func TestSession_TurnTimeoutSurfacesError(t *testing.T) {
	conn := newFakeConn()
	stop := runTestSessionCfg(t, conn, Dependencies{
		Provider: stallingProvider{},
	}, Config{TurnTimeout: 30 * time.Millisecond})
	defer stop()

	conn.send(t, protocol.TypeChatMessage, protocol.ClientChatMessage{Text: "hi"})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"thinking"`)
	})

	// The deadline expiring must still produce a recorded error turn and a
	// status transition; the session cannot stay stuck thinking.
	turn := waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"type":"conversation_turn"`)
	})
	if !strings.Contains(turn, errorPlaceholderMessage) {
		t.Fatalf("timed-out turn missing placeholder: %s", turn)
	}
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"error"`)
	})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"idle"`)
	})

	// And the session still serves the next turn.
	conn.send(t, protocol.TypeChatMessage, protocol.ClientChatMessage{Text: "again"})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"state":"thinking"`)
	})
}

func TestCancelTurn_InvalidatesSpeakingPhase(t *testing.T) {
	sess := New(Dependencies{Conn: newFakeConn(), Logger: testLogger()}, Config{})

	// Completion finished, synthesis still streaming.
	sess.latestTurn.Store(3)
	sess.turnActive = false
	sess.synthCancel = func() {}

	sess.cancelTurn(true)
	if got := sess.latestTurn.Load(); got != 4 {
		t.Fatalf("latestTurn = %d, want 4 (queued audio must be invalidated)", got)
	}

	// Nothing in flight: a second interrupt does not bump.
	sess.cancelTurn(true)
	if got := sess.latestTurn.Load(); got != 4 {
		t.Fatalf("latestTurn = %d, want 4 (idle interrupt must not invalidate)", got)
	}
}

func TestSession_UnknownAndMalformedFramesIgnored(t *testing.T) {
	conn := newFakeConn()
	stop := runTestSession(t, conn, Dependencies{
		Provider: &fakeProvider{tokens: []string{"ok"}},
	})
	defer stop()

	conn.reads <- []byte(`not json at all`)
	conn.reads <- []byte(`{"type":"made_up_type"}`)

	// The connection stays open and the session still serves turns.
	conn.send(t, protocol.TypeChatMessage, protocol.ClientChatMessage{Text: "hi"})
	waitForWrite(t, conn, func(s string) bool {
		return strings.Contains(s, `"type":"conversation_turn"`)
	})
}
