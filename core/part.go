package core

import "strings"

// Block represents one content segment of a message. Concrete block types
// implement the unexported isBlock marker enabling a closed set.
type Block interface{ isBlock() }

// TextBlock is a plain text content segment.
type TextBlock struct {
	Text string `json:"text"`
}

// isBlock implements the Block interface for TextBlock.
func (TextBlock) isBlock() {}

// ImageBlock is an inline image segment. Data is base64 encoded.
type ImageBlock struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// isBlock implements the Block interface for ImageBlock.
func (ImageBlock) isBlock() {}

// ToolCallBlock records a tool call inside an assistant message.
type ToolCallBlock struct {
	ToolCall ToolCall `json:"tool_call"`
}

// isBlock implements the Block interface for ToolCallBlock.
func (ToolCallBlock) isBlock() {}

// JoinText concatenates the text of all TextBlocks in order.
func JoinText(blocks []Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		if tb, ok := blk.(TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}
