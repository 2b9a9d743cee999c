// Package openai implements the completion port against the OpenAI
// chat-completions streaming API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Provider streams chat completions from OpenAI.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	system     string
	httpClient *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// WithSystemPrompt sets the system message prepended to every completion.
func WithSystemPrompt(prompt string) Option {
	return func(p *Provider) { p.system = prompt }
}

// New creates an OpenAI provider for the given model.
func New(apiKey, model string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// StreamCompletion starts a streaming completion over the full history.
func (p *Provider) StreamCompletion(ctx context.Context, messages []types.Message) (core.TokenStream, error) {
	req := &chatRequest{
		Model:  p.model,
		Stream: true,
	}
	if strings.TrimSpace(p.system) != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: p.system})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Text})
	}

	body, err := p.doStreamRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return newTokenStream(body), nil
}

func (p *Provider) doStreamRequest(ctx context.Context, req *chatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, p.parseError(resp)
	}
	return resp.Body, nil
}

func (p *Provider) parseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		return &core.Error{
			Type:    errorTypeForStatus(resp.StatusCode),
			Message: envelope.Error.Message,
			Code:    envelope.Error.Code,
		}
	}
	return &core.Error{
		Type:    errorTypeForStatus(resp.StatusCode),
		Message: fmt.Sprintf("openai error %d", resp.StatusCode),
	}
}

func errorTypeForStatus(status int) core.ErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrAuthentication
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimit
	case status >= 500:
		return core.ErrOverloaded
	default:
		return core.ErrProvider
	}
}
