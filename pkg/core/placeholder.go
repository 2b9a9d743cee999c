package core

import (
	"context"
	"io"
	"strings"

	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// PlaceholderProvider is the degraded completion port used when no provider
// credentials are configured. It answers with a fixed notice so sessions can
// still be exercised end to end.
type PlaceholderProvider struct {
	Reply string
}

const defaultPlaceholderReply = "I'm not connected to a language model right now, so I can't help with that yet."

// Name returns the provider identifier.
func (p *PlaceholderProvider) Name() string { return "placeholder" }

// StreamCompletion yields the fixed reply as a short token stream.
func (p *PlaceholderProvider) StreamCompletion(ctx context.Context, _ []types.Message) (TokenStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply := p.Reply
	if strings.TrimSpace(reply) == "" {
		reply = defaultPlaceholderReply
	}
	return &placeholderStream{words: strings.Fields(reply)}, nil
}

type placeholderStream struct {
	words []string
	idx   int
}

func (s *placeholderStream) Next() (string, error) {
	if s.idx >= len(s.words) {
		return "", io.EOF
	}
	token := s.words[s.idx]
	if s.idx > 0 {
		token = " " + token
	}
	s.idx++
	return token, nil
}

func (s *placeholderStream) Close() error { return nil }
