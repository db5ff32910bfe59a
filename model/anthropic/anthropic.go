// Package anthropic provides a model.Connector for the Anthropic Messages
// streaming API. input_json_delta fragments are keyed by content-block index
// and assembled into canonical toolcall events.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/stream"
	"github.com/hupe1980/agentwire/tool"
	"github.com/tidwall/gjson"
)

// Options configures the Anthropic connector. Extend via functional options to preserve stability.
type Options struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	// MaxTokens is used when neither call options nor the descriptor set a limit.
	MaxTokens int
}

// Connector streams messages from the Anthropic API.
type Connector struct {
	client *anthropic.Client
	opts   Options
}

// NewConnector creates a new Anthropic connector using the official client.
func NewConnector(optFns ...func(o *Options)) *Connector {
	opts := Options{
		MaxRetries: 2,
		MaxTokens:  4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Connector{
		client: &client,
		opts:   opts,
	}
}

// Info implements model.Connector.
func (c *Connector) Info() model.Info {
	return model.Info{
		ID:       "anthropic",
		Label:    "Anthropic",
		Provider: "anthropic",
		API:      model.APIAnthropicMessages,
		EnvVars:  []string{"ANTHROPIC_API_KEY", "ANTHROPIC_OAUTH_TOKEN"},
	}
}

// Models implements model.Connector.
func (c *Connector) Models() []model.Descriptor {
	d := func(id, name string, maxTokens int) model.Descriptor {
		return model.Descriptor{ID: id, Name: name, Provider: "anthropic", API: model.APIAnthropicMessages, ContextWindow: 200000, MaxTokens: maxTokens}
	}
	return []model.Descriptor{
		d("claude-opus-4-1", "Claude Opus 4.1", 32000),
		d("claude-sonnet-4-0", "Claude Sonnet 4", 64000),
		d("claude-3-7-sonnet-latest", "Claude Sonnet 3.7", 64000),
		d("claude-3-5-haiku-latest", "Claude Haiku 3.5", 8192),
	}
}

// Stream implements model.Connector. The request is sent on the first pull.
func (c *Connector) Stream(ctx context.Context, m model.Descriptor, mc model.Context, opts model.StreamOptions) *stream.Stream {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.ID),
		Messages:  ConvertMessages(mc.Messages),
		MaxTokens: int64(opts.MaxTokensFor(m, c.opts.MaxTokens)),
	}
	if mc.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: mc.SystemPrompt}}
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
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
		open: func(ctx context.Context) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
			return c.client.Messages.NewStreaming(ctx, params, reqOpts...)
		},
		norm:  stream.NewNormalizer(),
		usage: &core.Usage{},
	})
}

// source maps Messages stream events onto canonical events, one SSE event per
// pull. The request is sent on the first pull.
type source struct {
	open   func(ctx context.Context) *ssestream.Stream[anthropic.MessageStreamEventUnion]
	sdk    *ssestream.Stream[anthropic.MessageStreamEventUnion]
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
		return s.norm.Fail(stream.ErrUnexpectedEnd), nil
	}

	ev := s.sdk.Current()
	index := int(ev.Index)

	switch ev.Type {
	case "message_start":
		s.usage.InputTokens = int(ev.Message.Usage.InputTokens)
		s.usage.OutputTokens = int(ev.Message.Usage.OutputTokens)
	case "content_block_start":
		switch ev.ContentBlock.Type {
		case "tool_use":
			return s.norm.ToolCall(index, stream.Partial{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}), nil
		case "text":
			return s.norm.Text(ev.ContentBlock.Text), nil
		}
	case "content_block_delta":
		switch ev.Delta.Type {
		case "text_delta":
			return s.norm.Text(ev.Delta.Text), nil
		case "input_json_delta":
			return s.norm.ToolCall(index, stream.Partial{Arguments: ev.Delta.PartialJSON}), nil
		}
	case "content_block_stop":
		return s.norm.EndToolCall(index), nil
	case "message_delta":
		if ev.Delta.StopReason != "" {
			s.reason = MapStopReason(string(ev.Delta.StopReason))
		}
		if ev.Usage.OutputTokens > 0 {
			s.usage.OutputTokens = int(ev.Usage.OutputTokens)
		}
	case "message_stop":
		s.usage.TotalTokens = s.usage.InputTokens + s.usage.OutputTokens
		reason := s.reason
		if reason == "" {
			reason = core.StopReasonStop
		}
		return s.norm.Done(reason, s.usage), nil
	}
	return nil, nil
}

func (s *source) Close() error {
	if s.sdk == nil {
		return nil
	}
	return s.sdk.Close()
}

// MapStopReason maps an Anthropic stop_reason to a stop classification.
func MapStopReason(reason string) core.StopReason {
	switch reason {
	case "end_turn", "stop_sequence", "pause_turn":
		return core.StopReasonStop
	case "max_tokens":
		return core.StopReasonLength
	case "tool_use":
		return core.StopReasonToolUse
	case "refusal":
		return core.StopReasonError
	default:
		return core.StopReasonStop
	}
}

// describe extracts the provider message from an API error envelope.
func describe(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if msg := gjson.Get(apiErr.RawJSON(), "error.message").String(); msg != "" {
			return fmt.Errorf("anthropic: %s (status %d)", msg, apiErr.StatusCode)
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}

// ConvertTools converts tool definitions to Anthropic tool format.
func ConvertTools(defs []tool.Definition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))

	for i, def := range defs {
		params := tool.Scrub(def.Parameters, "anthropic")
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: params["properties"],
		}
		switch req := params["required"].(type) {
		case []string:
			inputSchema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					inputSchema.Required = append(inputSchema.Required, s)
				}
			}
		}

		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
		tools[i].OfTool.Description = anthropic.String(def.Description)
	}

	return tools
}

// ConvertMessages converts history into Anthropic messages. Consecutive tool
// results are merged into one user message of tool_result blocks.
func ConvertMessages(msgs []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range msgs {
		switch m := msg.(type) {
		case core.UserMessage:
			flush()
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case core.AssistantMessage:
			flush()
			var content []anthropic.ContentBlockParamUnion
			for _, b := range m.Content {
				switch blk := b.(type) {
				case core.TextBlock:
					if blk.Text != "" {
						content = append(content, anthropic.NewTextBlock(blk.Text))
					}
				case core.ToolCallBlock:
					input := blk.ToolCall.Arguments
					if input == nil {
						input = map[string]any{}
					}
					content = append(content, anthropic.NewToolUseBlock(blk.ToolCall.ID, input, blk.ToolCall.Name))
				}
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		case core.ToolResultMessage:
			results = append(results, toolResultBlock(m))
		}
	}
	flush()

	return out
}

func toolResultBlock(m core.ToolResultMessage) anthropic.ContentBlockParamUnion {
	block := anthropic.ToolResultBlockParam{
		ToolUseID: m.ToolCallID,
		IsError:   anthropic.Bool(m.IsError),
	}
	for _, b := range m.Content {
		switch blk := b.(type) {
		case core.TextBlock:
			block.Content = append(block.Content, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: blk.Text},
			})
		case core.ImageBlock:
			block.Content = append(block.Content, anthropic.ToolResultBlockParamContentUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							Data:      blk.Data,
							MediaType: anthropic.Base64ImageSourceMediaType(blk.MimeType),
						},
					},
				},
			})
		}
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &block}
}
