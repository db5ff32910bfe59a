package model

import (
	"context"
	"sync"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/stream"
	"github.com/hupe1980/agentwire/tool"
)

// Wire-transport kinds.
const (
	APIOpenAICompletions = "openai-completions"
	APIAnthropicMessages = "anthropic-messages"
	APIGoogleGenerative  = "google-generative-ai"
)

// Descriptor identifies a callable model. Immutable.
type Descriptor struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Provider      string `json:"provider" yaml:"provider"`
	API           string `json:"api" yaml:"api"`
	ContextWindow int    `json:"context_window" yaml:"context_window"`
	MaxTokens     int    `json:"max_tokens" yaml:"max_tokens"`
	BaseURL       string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// Context is the conversation handed to a connector for one call.
type Context struct {
	SystemPrompt string
	Messages     []core.Message
	Tools        []tool.Definition
}

// StreamOptions are per-call settings. Cancellation travels in the
// context.Context passed to Stream.
type StreamOptions struct {
	APIKey      string
	MaxTokens   int
	Temperature *float64
}

// MaxTokensFor returns the output-token limit for a call: the explicit
// option, else the descriptor limit, else fallback.
func (o StreamOptions) MaxTokensFor(m Descriptor, fallback int) int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	if m.MaxTokens > 0 {
		return m.MaxTokens
	}
	return fallback
}

// Info contains metadata about a connector implementation.
type Info struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Provider string   `json:"provider"` // "openai", "anthropic", "google", ...
	API      string   `json:"api"`
	EnvVars  []string `json:"env_vars"` // accepted credential variables, in preference order
}

// Connector adapts one provider's streaming wire format to canonical events.
//
// Stream never fails synchronously: transport and provider failures surface
// as a terminal error event. Cancelling ctx stops production without a
// terminal event.
type Connector interface {
	Info() Info
	Models() []Descriptor
	Stream(ctx context.Context, m Descriptor, c Context, opts StreamOptions) *stream.Stream
}

// Registry holds connectors keyed by id with a secondary lookup by provider.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Connector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Connector)}
}

// Register inserts c or replaces the connector with the same id.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.Info().ID
	if _, ok := r.byID[id]; !ok {
		r.order = append(r.order, id)
	}
	r.byID[id] = c
}

// Get returns the connector registered under id.
func (r *Registry) Get(id string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	return c, ok
}

// ByProvider returns the first registered connector for provider.
func (r *Registry) ByProvider(provider string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if c := r.byID[id]; c.Info().Provider == provider {
			return c, true
		}
	}
	return nil, false
}

// All returns the connectors in registration order.
func (r *Registry) All() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connector, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// FindModel resolves provider and model id to a connector and descriptor.
// Unknown model ids of a known provider yield a descriptor built from the
// connector's info so callers can address models missing from static lists.
func (r *Registry) FindModel(provider, modelID string) (Connector, Descriptor, bool) {
	c, ok := r.ByProvider(provider)
	if !ok {
		if c, ok = r.Get(provider); !ok {
			return nil, Descriptor{}, false
		}
	}
	for _, d := range c.Models() {
		if d.ID == modelID {
			return c, d, true
		}
	}
	info := c.Info()
	return c, Descriptor{ID: modelID, Name: modelID, Provider: info.Provider, API: info.API}, true
}
