// Package gemini provides a model.Connector over the Google Gemini API
// (generative-ai-go). Gemini delivers whole function calls per chunk; each is
// replayed as toolcall start, one delta carrying the encoded arguments (none
// for parameterless calls), and end, so downstream consumers see the same event shape as for fragmenting
// providers.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/generative-ai-go/genai"
	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/stream"
	"github.com/hupe1980/agentwire/tool"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Options configure the Gemini connector.
type Options struct {
	APIKey string
	// Endpoint overrides the API endpoint (descriptor BaseURL wins per call).
	Endpoint string
	// MaxTokens is used when neither call options nor the descriptor set a limit.
	MaxTokens     int
	ClientOptions []option.ClientOption
}

// Connector streams generations from Gemini. A client is created per call so
// per-call API keys are honored and released with the stream.
type Connector struct {
	opts Options
}

// NewConnector creates a Gemini connector.
func NewConnector(optFns ...func(o *Options)) *Connector {
	opts := Options{MaxTokens: 8192}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Connector{opts: opts}
}

// Info implements model.Connector.
func (c *Connector) Info() model.Info {
	return model.Info{
		ID:       "google",
		Label:    "Google Gemini",
		Provider: "google",
		API:      model.APIGoogleGenerative,
		EnvVars:  []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}
}

// Models implements model.Connector.
func (c *Connector) Models() []model.Descriptor {
	d := func(id, name string, window, maxTokens int) model.Descriptor {
		return model.Descriptor{ID: id, Name: name, Provider: "google", API: model.APIGoogleGenerative, ContextWindow: window, MaxTokens: maxTokens}
	}
	return []model.Descriptor{
		d("gemini-2.5-pro", "Gemini 2.5 Pro", 1048576, 65536),
		d("gemini-2.5-flash", "Gemini 2.5 Flash", 1048576, 65536),
		d("gemini-2.0-flash", "Gemini 2.0 Flash", 1048576, 8192),
	}
}

// Stream implements model.Connector. The client and request are created on
// the first pull.
func (c *Connector) Stream(ctx context.Context, m model.Descriptor, mc model.Context, opts model.StreamOptions) *stream.Stream {
	clientOpts := append([]option.ClientOption(nil), c.opts.ClientOptions...)
	apiKey := c.opts.APIKey
	if opts.APIKey != "" {
		apiKey = opts.APIKey
	}
	if apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}
	endpoint := c.opts.Endpoint
	if m.BaseURL != "" {
		endpoint = m.BaseURL
	}
	if endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(endpoint))
	}
	maxTokens := opts.MaxTokensFor(m, c.opts.MaxTokens)

	open := func(ctx context.Context) (responseIterator, io.Closer, error) {
		history, last, err := ConvertMessages(mc.Messages)
		if err != nil {
			return nil, nil, err
		}

		client, err := genai.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
		}

		gm := client.GenerativeModel(m.ID)
		gm.SetMaxOutputTokens(int32(maxTokens))
		if opts.Temperature != nil {
			gm.SetTemperature(float32(*opts.Temperature))
		}
		if mc.SystemPrompt != "" {
			gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(mc.SystemPrompt)}}
		}
		if len(mc.Tools) > 0 {
			gm.Tools = ConvertTools(mc.Tools)
		}

		cs := gm.StartChat()
		cs.History = history
		return cs.SendMessageStream(ctx, last...), client, nil
	}

	return stream.New(ctx, &source{open: open, norm: stream.NewNormalizer()})
}

type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

type source struct {
	open   func(ctx context.Context) (responseIterator, io.Closer, error)
	iter   responseIterator
	closer io.Closer
	norm   *stream.Normalizer
	next   int
	reason core.StopReason
	usage  *core.Usage
}

func (s *source) Next(ctx context.Context) ([]core.Event, error) {
	if s.norm.Finished() {
		return nil, io.EOF
	}
	if s.iter == nil {
		iter, closer, err := s.open(ctx)
		if err != nil {
			return s.norm.Fail(fmt.Errorf("gemini: %w", err)), nil
		}
		s.iter, s.closer = iter, closer
	}

	resp, err := s.iter.Next()
	if errors.Is(err, iterator.Done) {
		reason := s.reason
		if reason == "" {
			reason = core.StopReasonStop
		}
		return s.norm.Done(reason, s.usage), nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return s.norm.Fail(fmt.Errorf("gemini: %w", err)), nil
	}
	return s.decode(resp), nil
}

// decode maps one response chunk. Function calls are complete per chunk and
// are assigned consecutive indices across the turn.
func (s *source) decode(resp *genai.GenerateContentResponse) []core.Event {
	if u := resp.UsageMetadata; u != nil {
		s.usage = &core.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}

	var events []core.Event
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				switch p := part.(type) {
				case genai.Text:
					events = append(events, s.norm.Text(string(p))...)
				case genai.FunctionCall:
					args, err := encodeArgs(p.Args)
					if err != nil {
						return append(events, s.norm.Fail(fmt.Errorf("%w: %v", core.ErrMalformedToolArguments, err))...)
					}
					idx := s.next
					s.next++
					events = append(events, s.norm.ToolCall(idx, stream.Partial{Name: p.Name, Arguments: args})...)
					events = append(events, s.norm.EndToolCall(idx)...)
				}
			}
		}
		if cand.FinishReason != genai.FinishReasonUnspecified {
			s.reason = MapFinishReason(cand.FinishReason)
		}
	}
	return events
}

// encodeArgs renders call arguments as JSON. Parameterless calls arrive
// without args and produce no fragment, which assembles as an empty object.
func encodeArgs(args map[string]any) (string, error) {
	if args == nil {
		return "", nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// MapFinishReason maps a Gemini finish reason to a stop classification.
func MapFinishReason(reason genai.FinishReason) core.StopReason {
	switch reason {
	case genai.FinishReasonStop:
		return core.StopReasonStop
	case genai.FinishReasonMaxTokens:
		return core.StopReasonLength
	default:
		return core.StopReasonError
	}
}

// ConvertTools declares tools as function declarations with scrubbed schemas.
func ConvertTools(defs []tool.Definition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(defs))
	for i, def := range defs {
		decls[i] = &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  ConvertSchema(tool.Scrub(def.Parameters, "google")),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// ConvertSchema converts a JSON-Schema-shaped map into a genai.Schema.
func ConvertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{}
	switch schema["type"] {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	case "object":
		out.Type = genai.TypeObject
	}
	out.Description, _ = schema["description"].(string)
	out.Format, _ = schema["format"].(string)
	out.Nullable, _ = schema["nullable"].(bool)
	out.Enum = stringList(schema["enum"])
	out.Required = stringList(schema["required"])

	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = ConvertSchema(items)
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[name] = ConvertSchema(pm)
			}
		}
	}
	return out
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return nil
	}
}

// ConvertMessages splits history into chat history and the parts of the final
// message to send. Consecutive user-role parts (prompts and tool results)
// share one content so roles alternate.
func ConvertMessages(msgs []core.Message) ([]*genai.Content, []genai.Part, error) {
	var contents []*genai.Content
	appendParts := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role && role == "user" {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range msgs {
		switch m := msg.(type) {
		case core.UserMessage:
			if m.Content != "" {
				appendParts("user", genai.Text(m.Content))
			}
		case core.AssistantMessage:
			var parts []genai.Part
			for _, b := range m.Content {
				switch blk := b.(type) {
				case core.TextBlock:
					if blk.Text != "" {
						parts = append(parts, genai.Text(blk.Text))
					}
				case core.ToolCallBlock:
					parts = append(parts, genai.FunctionCall{Name: blk.ToolCall.Name, Args: blk.ToolCall.Arguments})
				}
			}
			appendParts("model", parts...)
		case core.ToolResultMessage:
			key := "result"
			if m.IsError {
				key = "error"
			}
			parts := []genai.Part{genai.FunctionResponse{Name: m.ToolName, Response: map[string]any{key: m.Text()}}}
			for _, b := range m.Content {
				if img, ok := b.(core.ImageBlock); ok {
					data, err := base64.StdEncoding.DecodeString(img.Data)
					if err != nil {
						return nil, nil, fmt.Errorf("decode image from %s: %w", m.ToolName, err)
					}
					parts = append(parts, genai.Blob{MIMEType: img.MimeType, Data: data})
				}
			}
			appendParts("user", parts...)
		}
	}

	if len(contents) == 0 {
		return nil, nil, errors.New("no messages to send")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, nil, errors.New("last message must come from the user or a tool")
	}
	return contents[:len(contents)-1], last.Parts, nil
}
