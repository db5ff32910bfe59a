// Package core provides the provider independent vocabulary shared by every
// other package:
//
//   - Canonical stream events (start, text, tool-call, done, error)
//   - Conversation messages (user, assistant, tool-result) and content blocks
//   - Tool calls with parsed arguments and stop classifications
//   - Sentinel errors for malformed arguments and protocol violations
//
// The package has no knowledge of transports or providers. Connectors speak
// this vocabulary; the loop coordinator consumes it.
package core
