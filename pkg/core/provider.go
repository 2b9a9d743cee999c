package core

import (
	"context"

	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// Provider is the streaming completion port. Given a message history it
// yields a stream of text tokens; cancellation goes through the context.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "gemini").
	Name() string

	// StreamCompletion starts a completion over the full history.
	StreamCompletion(ctx context.Context, messages []types.Message) (TokenStream, error)
}

// TokenStream is an iterator over completion tokens.
type TokenStream interface {
	// Next returns the next token. Returns "", io.EOF when the stream is
	// complete. If both a token and io.EOF are returned, consumers should
	// process the token first.
	Next() (string, error)

	// Close releases resources.
	Close() error
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(provider Provider)

	// Get returns a provider by name.
	Get(name string) (Provider, bool)

	// List returns all registered provider names.
	List() []string
}

type defaultRegistry struct {
	providers map[string]Provider
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry() ProviderRegistry {
	return &defaultRegistry{
		providers: make(map[string]Provider),
	}
}

func (r *defaultRegistry) Register(provider Provider) {
	r.providers[provider.Name()] = provider
}

func (r *defaultRegistry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *defaultRegistry) List() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
