// Package gemini implements the completion port on the Google GenAI SDK.
package gemini

import (
	"context"
	"io"
	"iter"

	"google.golang.org/genai"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// Provider streams completions from the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
	system string
}

// New creates a Gemini provider for the given model.
func New(ctx context.Context, apiKey, model, systemPrompt string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewProviderError("gemini", err)
	}
	return &Provider{client: client, model: model, system: systemPrompt}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// StreamCompletion starts a streaming completion over the full history.
func (p *Provider) StreamCompletion(ctx context.Context, messages []types.Message) (core.TokenStream, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	var cfg *genai.GenerateContentConfig
	if p.system != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(p.system, genai.RoleUser),
		}
	}

	seq := p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg)
	next, stop := iter.Pull2(seq)
	return &tokenStream{next: next, stop: stop}, nil
}

// tokenStream adapts the SDK's pull iterator to core.TokenStream.
type tokenStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
	err  error
}

func (s *tokenStream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for {
		resp, err, ok := s.next()
		if !ok {
			s.err = io.EOF
			return "", io.EOF
		}
		if err != nil {
			s.err = core.NewProviderError("gemini", err)
			return "", s.err
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
}

func (s *tokenStream) Close() error {
	s.stop()
	return nil
}
