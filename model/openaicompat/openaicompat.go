// Package openaicompat provides a model.Connector for OpenAI-compatible
// /chat/completions endpoints (Ollama, vLLM, DeepSeek, LM Studio, ...) over
// plain HTTP. Chunks are read with gjson rather than decoded into SDK types
// so vendor extensions and partial envelopes do not break decoding.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/model/openai"
	"github.com/hupe1980/agentwire/stream"
	"github.com/hupe1980/agentwire/tool"
	"github.com/tidwall/gjson"
)

// Options configure an OpenAI-compatible connector.
type Options struct {
	ID       string
	Label    string
	Provider string
	BaseURL  string
	APIKey   string
	EnvVars  []string
	// Models is the optional static model list.
	Models     []model.Descriptor
	Headers    map[string]string
	HTTPClient *http.Client
	// MaxTokens is used when neither call options nor the descriptor set a limit.
	MaxTokens int
}

// Connector streams chat completions from an OpenAI-compatible server.
type Connector struct {
	opts Options
}

// NewConnector creates a connector; the default targets a local Ollama.
func NewConnector(optFns ...func(o *Options)) *Connector {
	opts := Options{
		ID:         "ollama",
		Label:      "Ollama",
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434/v1",
		HTTPClient: http.DefaultClient,
		MaxTokens:  4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Connector{opts: opts}
}

// Info implements model.Connector.
func (c *Connector) Info() model.Info {
	return model.Info{
		ID:       c.opts.ID,
		Label:    c.opts.Label,
		Provider: c.opts.Provider,
		API:      model.APIOpenAICompletions,
		EnvVars:  c.opts.EnvVars,
	}
}

// Models implements model.Connector.
func (c *Connector) Models() []model.Descriptor {
	return append([]model.Descriptor(nil), c.opts.Models...)
}

// Stream implements model.Connector. The request is issued on the first pull.
func (c *Connector) Stream(ctx context.Context, m model.Descriptor, mc model.Context, opts model.StreamOptions) *stream.Stream {
	body := map[string]any{
		"model":          m.ID,
		"messages":       ConvertMessages(mc.SystemPrompt, mc.Messages),
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
		"max_tokens":     opts.MaxTokensFor(m, c.opts.MaxTokens),
	}
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if len(mc.Tools) > 0 {
		body["tools"] = ConvertTools(mc.Tools)
	}

	baseURL := c.opts.BaseURL
	if m.BaseURL != "" {
		baseURL = strings.TrimRight(m.BaseURL, "/")
	}
	apiKey := c.opts.APIKey
	if opts.APIKey != "" {
		apiKey = opts.APIKey
	}

	return stream.New(ctx, &source{
		client:  c.opts.HTTPClient,
		url:     baseURL + "/chat/completions",
		apiKey:  apiKey,
		headers: c.opts.Headers,
		body:    body,
		norm:    stream.NewNormalizer(),
	})
}

type source struct {
	client  *http.Client
	url     string
	apiKey  string
	headers map[string]string
	body    map[string]any

	resp   *http.Response
	dec    *stream.SSEDecoder
	norm   *stream.Normalizer
	reason core.StopReason
	usage  *core.Usage

	// Current tool call, for servers that omit tool_calls[].index.
	calls   int
	lastIdx int
	lastID  string
}

func (s *source) Next(ctx context.Context) ([]core.Event, error) {
	if s.norm.Finished() {
		return nil, io.EOF
	}
	if s.resp == nil {
		if events := s.open(ctx); events != nil {
			return events, nil
		}
	}

	rec, err := s.dec.Next()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, io.EOF) && s.reason != "" {
			return s.finish(), nil
		}
		if errors.Is(err, io.EOF) {
			return s.norm.Fail(stream.ErrUnexpectedEnd), nil
		}
		return s.norm.Fail(fmt.Errorf("read stream: %w", err)), nil
	}
	if rec.Event == "error" {
		return s.norm.Fail(errors.New(errorMessage(rec.Data))), nil
	}
	if string(rec.Data) == "[DONE]" {
		return s.finish(), nil
	}
	return s.decode(rec.Data), nil
}

// open issues the request; a non-nil result is the terminal failure.
func (s *source) open(ctx context.Context) []core.Event {
	payload, err := json.Marshal(s.body)
	if err != nil {
		return s.norm.Fail(fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return s.norm.Fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return s.norm.Fail(fmt.Errorf("request failed: %w", err))
	}
	s.resp = resp

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return s.norm.Fail(fmt.Errorf("%s (status %d)", errorMessage(raw), resp.StatusCode))
	}
	s.dec = stream.NewSSEDecoder(resp.Body)
	return nil
}

func (s *source) decode(data []byte) []core.Event {
	chunk := gjson.ParseBytes(data)
	if msg := chunk.Get("error.message"); msg.Exists() {
		return s.norm.Fail(errors.New(msg.String()))
	}

	if u := chunk.Get("usage"); u.IsObject() {
		s.usage = &core.Usage{
			InputTokens:  int(u.Get("prompt_tokens").Int()),
			OutputTokens: int(u.Get("completion_tokens").Int()),
			TotalTokens:  int(u.Get("total_tokens").Int()),
		}
	}

	var events []core.Event
	for _, choice := range chunk.Get("choices").Array() {
		delta := choice.Get("delta")
		events = append(events, s.norm.Text(delta.Get("content").String())...)
		for i, tc := range delta.Get("tool_calls").Array() {
			index := s.callIndex(i, tc)
			events = append(events, s.norm.ToolCall(index, stream.Partial{
				ID:        tc.Get("id").String(),
				Name:      tc.Get("function.name").String(),
				Arguments: tc.Get("function.arguments").String(),
			})...)
		}
		if fr := choice.Get("finish_reason"); fr.Type == gjson.String && fr.String() != "" {
			s.reason = openai.MapFinishReason(fr.String())
		}
	}
	return events
}

// callIndex returns the stream index of a tool_calls entry at position pos of
// its chunk. Without an explicit index, an entry opens a new call when it
// carries an unseen id or sits after the first position, and continues the
// current call otherwise.
func (s *source) callIndex(pos int, tc gjson.Result) int {
	id := tc.Get("id").String()
	if idx := tc.Get("index"); idx.Exists() {
		s.track(int(idx.Int()), id)
		return s.lastIdx
	}

	switch {
	case s.calls == 0:
		s.track(pos, id)
	case (id != "" && id != s.lastID) || pos > 0:
		s.track(s.lastIdx+1, id)
	}
	return s.lastIdx
}

func (s *source) track(index int, id string) {
	if s.calls == 0 || index != s.lastIdx {
		s.calls++
		s.lastID = ""
	}
	s.lastIdx = index
	if id != "" {
		s.lastID = id
	}
}

// finish closes the turn. Servers that omit finish_reason end with stop once
// [DONE] arrives.
func (s *source) finish() []core.Event {
	reason := s.reason
	if reason == "" {
		reason = core.StopReasonStop
	}
	return s.norm.Done(reason, s.usage)
}

func (s *source) Close() error {
	if s.resp == nil {
		return nil
	}
	return s.resp.Body.Close()
}

// errorMessage extracts a human readable message from an error body.
func errorMessage(raw []byte) string {
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		if r := gjson.GetBytes(raw, path); r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return "empty error response"
}

// ConvertTools renders function tool definitions.
func ConvertTools(defs []tool.Definition) []map[string]any {
	out := make([]map[string]any, len(defs))
	for i, def := range defs {
		out[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"parameters":  tool.Scrub(def.Parameters, "openai"),
			},
		}
	}
	return out
}

// ConvertMessages renders history as chat messages. Images in tool results
// are replaced by a text placeholder.
func ConvertMessages(system string, msgs []core.Message) []map[string]any {
	var out []map[string]any
	if system != "" {
		out = append(out, map[string]any{"role": "system", "content": system})
	}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case core.UserMessage:
			out = append(out, map[string]any{"role": "user", "content": m.Content})
		case core.AssistantMessage:
			entry := map[string]any{"role": "assistant", "content": m.Text()}
			var calls []map[string]any
			for _, call := range m.ToolCalls() {
				calls = append(calls, map[string]any{
					"id":   call.ID,
					"type": "function",
					"function": map[string]any{
						"name":      call.Name,
						"arguments": call.ArgumentsJSON(),
					},
				})
			}
			if len(calls) > 0 {
				entry["tool_calls"] = calls
			}
			out = append(out, entry)
		case core.ToolResultMessage:
			var parts []string
			for _, b := range m.Content {
				switch blk := b.(type) {
				case core.TextBlock:
					parts = append(parts, blk.Text)
				case core.ImageBlock:
					parts = append(parts, fmt.Sprintf("[image omitted: %s]", blk.MimeType))
				}
			}
			out = append(out, map[string]any{
				"role":         "tool",
				"tool_call_id": m.ToolCallID,
				"content":      strings.Join(parts, "\n"),
			})
		}
	}
	return out
}
