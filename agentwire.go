// Package agentwire provides a high-level façade over the connector and tool
// registries and the agentic loop. Most applications interact with this
// package by:
//  1. Creating a Runtime via New()
//  2. Applying Loaders that register tools and connectors (Builtins for the
//     bundled ones, custom loaders for plugins)
//  3. Running a prompt with Run, observing events as they stream
//
// Connectors, tools and the coordinator remain usable on their own; the
// façade only wires credentials, prompt templating and logging around them.
package agentwire

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/credentials"
	"github.com/hupe1980/agentwire/flow"
	"github.com/hupe1980/agentwire/internal/util"
	"github.com/hupe1980/agentwire/logging"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/tool"
)

// Loader supplies tools and connectors to the registries at start.
type Loader interface {
	Name() string
	Load(ctx context.Context, tools *tool.Registry, connectors *model.Registry) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc struct {
	LoaderName string
	Fn         func(ctx context.Context, tools *tool.Registry, connectors *model.Registry) error
}

// Name implements Loader.
func (l LoaderFunc) Name() string { return l.LoaderName }

// Load implements Loader.
func (l LoaderFunc) Load(ctx context.Context, tools *tool.Registry, connectors *model.Registry) error {
	return l.Fn(ctx, tools, connectors)
}

// Options configures the Runtime.
type Options struct {
	// Credentials resolves API keys for connectors declaring env vars; nil
	// disables resolution and leaves keys to the SDK defaults.
	Credentials *credentials.Resolver

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Runtime aggregates the registries and runs the loop against them.
type Runtime struct {
	opts       Options
	tools      *tool.Registry
	connectors *model.Registry
}

// New creates a Runtime with empty registries.
func New(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runtime{
		opts: opts,
		tools: tool.NewRegistry(func(o *tool.RegistryOptions) {
			o.Logger = opts.Logger
		}),
		connectors: model.NewRegistry(),
	}
}

// Tools returns the tool registry.
func (r *Runtime) Tools() *tool.Registry { return r.tools }

// Connectors returns the connector registry.
func (r *Runtime) Connectors() *model.Registry { return r.connectors }

// Use applies loaders in order, stopping at the first failure.
func (r *Runtime) Use(ctx context.Context, loaders ...Loader) error {
	for _, l := range loaders {
		if err := l.Load(ctx, r.tools, r.connectors); err != nil {
			return fmt.Errorf("loader %s: %w", l.Name(), err)
		}
		r.opts.Logger.Debug("agentwire.loader.applied", "loader", l.Name())
	}
	return nil
}

// RunRequest describes one loop invocation.
type RunRequest struct {
	Provider string
	Model    string
	// BaseURL overrides the model endpoint.
	BaseURL string

	// Prompt is appended as a user message after Messages.
	Prompt   string
	Messages []core.Message

	// SystemPrompt is rendered as a text/template with Vars.
	SystemPrompt string
	Vars         map[string]any

	Workspace     tool.ResolveContext
	MaxTurns      int
	Dispatcher    flow.Dispatcher
	StreamOptions model.StreamOptions

	OnEvent   func(ev core.Event)
	OnMessage func(msg core.Message)
}

// ErrUnknownModel is returned when no connector serves the requested provider.
var ErrUnknownModel = errors.New("unknown provider")

// Run resolves the connector and model, the API key and the system prompt,
// then drives the coordinator to completion.
func (r *Runtime) Run(ctx context.Context, req RunRequest) (*flow.Result, error) {
	conn, desc, ok := r.connectors.FindModel(req.Provider, req.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, req.Provider)
	}
	if req.BaseURL != "" {
		desc.BaseURL = req.BaseURL
	}

	streamOpts := req.StreamOptions
	if streamOpts.APIKey == "" {
		key, err := r.resolveKey(conn.Info())
		if err != nil {
			return nil, err
		}
		streamOpts.APIKey = key
	}

	system, err := util.RenderTemplate(req.SystemPrompt, req.Vars)
	if err != nil {
		return nil, err
	}

	messages := append([]core.Message(nil), req.Messages...)
	if req.Prompt != "" {
		messages = append(messages, core.NewUserMessage(req.Prompt))
	}

	coord := flow.NewCoordinator(conn, desc, r.tools, func(o *flow.Options) {
		o.Logger = r.opts.Logger
		o.SystemPrompt = system
		o.MaxTurns = req.MaxTurns
		o.Workspace = req.Workspace
		o.Dispatcher = req.Dispatcher
		o.StreamOptions = streamOpts
		o.OnEvent = req.OnEvent
		o.OnMessage = req.OnMessage
	})
	return coord.Run(ctx, messages)
}

// resolveKey looks up the connector's key. A missing key is not an error:
// keyless local endpoints are common and SDKs read their own env defaults.
func (r *Runtime) resolveKey(info model.Info) (string, error) {
	if r.opts.Credentials == nil || len(info.EnvVars) == 0 {
		return "", nil
	}
	key, err := r.opts.Credentials.Resolve(info.Provider, info.EnvVars)
	if errors.Is(err, credentials.ErrNotFound) {
		r.opts.Logger.Debug("agentwire.credentials.missing", "provider", info.Provider)
		return "", nil
	}
	return key, err
}
