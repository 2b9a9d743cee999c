package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

func TestStreamCompletion_SSETokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization=%q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		_, _ = io.WriteString(w, ": keepalive comment\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New("test-key", "gpt-4o-mini", WithBaseURL(srv.URL))
	stream, err := p.StreamCompletion(context.Background(), []types.Message{
		{Role: types.RoleUser, Text: "hi"},
	})
	if err != nil {
		t.Fatalf("StreamCompletion error: %v", err)
	}
	defer stream.Close()

	var got string
	for {
		token, err := stream.Next()
		got += token
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
	}
	if got != "Hello" {
		t.Fatalf("streamed %q, want Hello", got)
	}
}

func TestStreamCompletion_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   core.ErrorType
	}{
		{http.StatusUnauthorized, core.ErrAuthentication},
		{http.StatusForbidden, core.ErrAuthentication},
		{http.StatusTooManyRequests, core.ErrRateLimit},
		{http.StatusInternalServerError, core.ErrOverloaded},
		{http.StatusBadRequest, core.ErrProvider},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope"}}`)
		}))

		p := New("test-key", "gpt-4o-mini", WithBaseURL(srv.URL))
		_, err := p.StreamCompletion(context.Background(), []types.Message{
			{Role: types.RoleUser, Text: "hi"},
		})
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		var ce *core.Error
		if !errors.As(err, &ce) {
			t.Fatalf("status %d: error type %T, want *core.Error", tc.status, err)
		}
		if ce.Type != tc.want {
			t.Fatalf("status %d: type=%q, want %q", tc.status, ce.Type, tc.want)
		}
	}
}

func TestStreamCompletion_SystemPromptLeads(t *testing.T) {
	var seenRoles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		for _, m := range req.Messages {
			seenRoles = append(seenRoles, m.Role)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New("test-key", "gpt-4o-mini", WithBaseURL(srv.URL), WithSystemPrompt("be brief"))
	stream, err := p.StreamCompletion(context.Background(), []types.Message{
		{Role: types.RoleUser, Text: "hi"},
		{Role: types.RoleAssistant, Text: "hello"},
		{Role: types.RoleUser, Text: "bye"},
	})
	if err != nil {
		t.Fatalf("StreamCompletion error: %v", err)
	}
	defer stream.Close()
	for {
		if _, err := stream.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
	}

	want := []string{"system", "user", "assistant", "user"}
	if len(seenRoles) != len(want) {
		t.Fatalf("roles=%v, want %v", seenRoles, want)
	}
	for i := range want {
		if seenRoles[i] != want[i] {
			t.Fatalf("roles=%v, want %v", seenRoles, want)
		}
	}
}
