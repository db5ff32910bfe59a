package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEDecoder(t *testing.T) {
	body := ": keep-alive\n" +
		"event: chunk\n" +
		"id: 7\n" +
		"data: {\"a\":1}\n\n" +
		"data: line1\r\n" +
		"data: line2\r\n\r\n" +
		"event: ping\n\n" +
		"\n\n" +
		"retry: 1000\n" +
		"data:[DONE]"

	d := NewSSEDecoder(strings.NewReader(body))

	rec, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, Record{Event: "chunk", ID: "7", Data: []byte(`{"a":1}`)}, rec)

	rec, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", string(rec.Data))
	assert.Empty(t, rec.Event, "fields do not leak across records")

	rec, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, "[DONE]", string(rec.Data), "trailing record without blank line")
	assert.Empty(t, rec.Event, "records without data are skipped")

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEDecoder_EmptyDataLine(t *testing.T) {
	d := NewSSEDecoder(strings.NewReader("data\n\n"))

	rec, err := d.Next()
	require.NoError(t, err)
	assert.Empty(t, rec.Data)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}
