package agentwire

import (
	"context"

	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/model/anthropic"
	"github.com/hupe1980/agentwire/model/gemini"
	"github.com/hupe1980/agentwire/model/openai"
	"github.com/hupe1980/agentwire/model/openaicompat"
	"github.com/hupe1980/agentwire/tool"
	"github.com/hupe1980/agentwire/tool/builtin"
)

// Builtins registers the bundled tools and the OpenAI, Anthropic, Gemini,
// local Ollama and mock connectors.
func Builtins() Loader {
	return LoaderFunc{
		LoaderName: "builtins",
		Fn: func(_ context.Context, tools *tool.Registry, connectors *model.Registry) error {
			builtin.Register(tools)
			connectors.Register(openai.NewConnector())
			connectors.Register(anthropic.NewConnector())
			connectors.Register(gemini.NewConnector())
			connectors.Register(openaicompat.NewConnector())
			connectors.Register(model.NewMockConnector())
			return nil
		},
	}
}

// Endpoint registers an OpenAI-compatible connector for baseURL. Model ids
// become its static model list.
func Endpoint(id, label, baseURL, apiKey string, envVars []string, modelIDs ...string) Loader {
	return LoaderFunc{
		LoaderName: "endpoint:" + id,
		Fn: func(_ context.Context, _ *tool.Registry, connectors *model.Registry) error {
			descs := make([]model.Descriptor, len(modelIDs))
			for i, m := range modelIDs {
				descs[i] = model.Descriptor{ID: m, Name: m, Provider: id, API: model.APIOpenAICompletions}
			}
			connectors.Register(openaicompat.NewConnector(func(o *openaicompat.Options) {
				o.ID = id
				o.Label = label
				o.Provider = id
				o.BaseURL = baseURL
				o.APIKey = apiKey
				o.EnvVars = envVars
				o.Models = descs
			}))
			return nil
		},
	}
}
