package stream

import (
	"bufio"
	"bytes"
	"io"
)

// maxSSELine bounds a single line of an event stream.
const maxSSELine = 1 << 20

// Record is one dispatched Server-Sent-Event.
type Record struct {
	// Event is the `event:` field; empty means the default "message" type.
	Event string
	// ID is the last `id:` field seen in the record.
	ID   string
	Data []byte
}

// SSEDecoder splits an event stream into records.
type SSEDecoder struct {
	sc *bufio.Scanner
}

// NewSSEDecoder wraps r. Lines longer than 1MiB fail with bufio.ErrTooLong.
func NewSSEDecoder(r io.Reader) *SSEDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &SSEDecoder{sc: sc}
}

// Next returns the next record that carries data. Multiple `data:` lines are
// joined with "\n". Comments, `retry:` and unknown fields are ignored, and
// records without data are skipped. A record cut off by EOF is still
// returned; io.EOF follows once nothing is pending.
func (d *SSEDecoder) Next() (Record, error) {
	var (
		rec     Record
		data    [][]byte
		hasData bool
	)
	for d.sc.Scan() {
		line := bytes.TrimSuffix(d.sc.Bytes(), []byte("\r"))
		if len(line) == 0 {
			if hasData {
				rec.Data = bytes.Join(data, []byte("\n"))
				return rec, nil
			}
			rec = Record{}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			data = append(data, append([]byte(nil), value...))
			hasData = true
		case "event":
			rec.Event = string(value)
		case "id":
			rec.ID = string(value)
		}
	}
	if err := d.sc.Err(); err != nil {
		return Record{}, err
	}
	if hasData {
		rec.Data = bytes.Join(data, []byte("\n"))
		return rec, nil
	}
	return Record{}, io.EOF
}

// splitField parses "field: value". A line starting with a colon is a
// comment and yields an empty field.
func splitField(line []byte) (string, []byte) {
	i := bytes.IndexByte(line, ':')
	switch {
	case i == 0:
		return "", nil
	case i < 0:
		return string(line), nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), value
}
