// Package openai provides a model.Connector over the OpenAI Chat Completions
// streaming API. Index-addressed tool-call fragments are assembled into
// canonical toolcall events; history is converted into the SDK's message
// format.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/stream"
	"github.com/hupe1980/agentwire/tool"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// Options configure the OpenAI connector.
type Options struct {
	// BaseURL overrides the API endpoint (descriptor BaseURL wins per call).
	BaseURL    string
	APIKey     string
	MaxRetries int
	// MaxCompletionTokens is used when neither call options nor the descriptor set a limit.
	MaxCompletionTokens int
	RequestOptions      []option.RequestOption
}

// Connector streams chat completions from OpenAI.
type Connector struct {
	client *openai.Client
	opts   Options
}

// NewConnector creates a new OpenAI connector using the official client.
func NewConnector(optFns ...func(o *Options)) *Connector {
	opts := Options{
		MaxRetries:          2,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	reqOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	reqOpts = append(reqOpts, opts.RequestOptions...)

	client := openai.NewClient(reqOpts...)
	return &Connector{client: &client, opts: opts}
}

// Info implements model.Connector.
func (c *Connector) Info() model.Info {
	return model.Info{
		ID:       "openai",
		Label:    "OpenAI",
		Provider: "openai",
		API:      model.APIOpenAICompletions,
		EnvVars:  []string{"OPENAI_API_KEY"},
	}
}

// Models implements model.Connector.
func (c *Connector) Models() []model.Descriptor {
	d := func(id, name string, window, maxTokens int) model.Descriptor {
		return model.Descriptor{ID: id, Name: name, Provider: "openai", API: model.APIOpenAICompletions, ContextWindow: window, MaxTokens: maxTokens}
	}
	return []model.Descriptor{
		d(openai.ChatModelGPT4o, "GPT-4o", 128000, 16384),
		d(openai.ChatModelGPT4oMini, "GPT-4o mini", 128000, 16384),
		d(openai.ChatModelGPT4_1, "GPT-4.1", 1047576, 32768),
		d(openai.ChatModelO4Mini, "o4-mini", 200000, 100000),
	}
}

// Stream implements model.Connector. The request is sent on the first pull.
func (c *Connector) Stream(ctx context.Context, m model.Descriptor, mc model.Context, opts model.StreamOptions) *stream.Stream {
	params := openai.ChatCompletionNewParams{
		Messages:            ConvertMessages(mc.SystemPrompt, mc.Messages),
		Model:               m.ID,
		MaxCompletionTokens: openai.Int(int64(opts.MaxTokensFor(m, c.opts.MaxCompletionTokens))),
		StreamOptions:       openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)},
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if len(mc.Tools) > 0 {
		params.Tools = ConvertTools(mc.Tools)
	}

	var reqOpts []option.RequestOption
	if m.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(m.BaseURL))
	}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}

	return stream.New(ctx, &source{
		open: func(ctx context.Context) *ssestream.Stream[openai.ChatCompletionChunk] {
			return c.client.Chat.Completions.NewStreaming(ctx, params, reqOpts...)
		},
		norm: stream.NewNormalizer(),
	})
}

// source adapts the SDK chunk stream; one chunk is decoded per pull. The
// request is sent on the first pull.
type source struct {
	open   func(ctx context.Context) *ssestream.Stream[openai.ChatCompletionChunk]
	sdk    *ssestream.Stream[openai.ChatCompletionChunk]
	norm   *stream.Normalizer
	reason core.StopReason
	usage  *core.Usage
}

func (s *source) Next(ctx context.Context) ([]core.Event, error) {
	if s.norm.Finished() {
		return nil, io.EOF
	}
	if s.sdk == nil {
		s.sdk = s.open(ctx)
	}

	if !s.sdk.Next() {
		if err := s.sdk.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return s.norm.Fail(describe(err)), nil
		}
		if s.reason == "" {
			return s.norm.Fail(stream.ErrUnexpectedEnd), nil
		}
		return s.norm.Done(s.reason, s.usage), nil
	}

	ck := s.sdk.Current()
	if ck.Usage.TotalTokens > 0 {
		s.usage = &core.Usage{
			InputTokens:  int(ck.Usage.PromptTokens),
			OutputTokens: int(ck.Usage.CompletionTokens),
			TotalTokens:  int(ck.Usage.TotalTokens),
		}
	}

	var events []core.Event
	for _, ch := range ck.Choices {
		events = append(events, s.norm.Text(ch.Delta.Content)...)
		for _, tc := range ch.Delta.ToolCalls {
			events = append(events, s.norm.ToolCall(int(tc.Index), stream.Partial{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})...)
		}
		if ch.FinishReason != "" {
			s.reason = MapFinishReason(ch.FinishReason)
		}
	}
	return events, nil
}

func (s *source) Close() error {
	if s.sdk == nil {
		return nil
	}
	return s.sdk.Close()
}

// MapFinishReason maps an OpenAI finish_reason to a stop classification.
func MapFinishReason(reason string) core.StopReason {
	switch reason {
	case "stop":
		return core.StopReasonStop
	case "length":
		return core.StopReasonLength
	case "tool_calls", "function_call":
		return core.StopReasonToolUse
	case "content_filter":
		return core.StopReasonError
	default:
		return core.StopReasonStop
	}
}

// describe reduces an SDK failure to the provider's message.
func describe(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("openai: %s (status %d)", apiErr.Message, apiErr.StatusCode)
	}
	return fmt.Errorf("openai: %w", err)
}

// ConvertTools maps tool definitions to function tools with scrubbed schemas.
func ConvertTools(defs []tool.Definition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(defs))
	for i, def := range defs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  tool.Scrub(def.Parameters, "openai"),
			},
		}
	}
	return tools
}

// ConvertMessages converts history into chat messages. Tool results become
// tool messages; images they carry are forwarded in a user message following
// the run of tool results, since tool messages only accept text.
func ConvertMessages(system string, msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	var pendingImages []openai.ChatCompletionContentPartUnionParam
	flushImages := func() {
		if len(pendingImages) == 0 {
			return
		}
		parts := append([]openai.ChatCompletionContentPartUnionParam{openai.TextContentPart("Attached image(s) from tool result:")}, pendingImages...)
		out = append(out, openai.UserMessage(parts))
		pendingImages = nil
	}

	for _, msg := range msgs {
		if _, ok := msg.(core.ToolResultMessage); !ok {
			flushImages()
		}

		switch m := msg.(type) {
		case core.UserMessage:
			out = append(out, openai.UserMessage(m.Content))
		case core.AssistantMessage:
			if param, ok := assistantParam(m); ok {
				out = append(out, param)
			}
		case core.ToolResultMessage:
			text := m.Text()
			for _, b := range m.Content {
				if img, ok := b.(core.ImageBlock); ok {
					pendingImages = append(pendingImages, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: "data:" + img.MimeType + ";base64," + img.Data,
					}))
					if text == "" {
						text = "(see attached image)"
					}
				}
			}
			out = append(out, openai.ToolMessage(text, m.ToolCallID))
		}
	}
	flushImages()

	return out
}

func assistantParam(m core.AssistantMessage) (openai.ChatCompletionMessageParamUnion, bool) {
	text := strings.TrimSpace(m.Text())
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, call := range m.ToolCalls() {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   call.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: call.ArgumentsJSON(),
			},
		})
	}
	if text == "" && len(toolCalls) == 0 {
		return openai.ChatCompletionMessageParamUnion{}, false
	}

	param := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
	if text != "" {
		param.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Text())}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}, true
}
