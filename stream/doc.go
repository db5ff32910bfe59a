// Package stream implements the mechanics every connector shares when turning
// a provider wire format into canonical events.
//
//   - Stream: pull-based event sequence over a lazily read Source; emits start,
//     converts transport failures into a terminal error event and releases the
//     source on the terminal event or on cancellation
//   - Assembler: index-keyed accumulation of streamed tool-call fragments into
//     parsed tool calls
//   - Normalizer: per-call turn builder combining text block tracking with the
//     Assembler
//   - Validator: incremental check of the stream invariants
//   - SSEDecoder: record decoder for raw Server-Sent-Event transports
package stream
