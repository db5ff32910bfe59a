// Package logging provides a minimal logging interface and adapters for agentwire.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that registries, connectors and the loop coordinator use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - AgentLogger with component and run context plus tool/model call helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	coord := flow.NewCoordinator(connector, tools, func(o *flow.Options) { o.Logger = logger })
//
// Messages are dotted event keys (flow.turn.start, tool.call.error) followed by
// key/value pairs, the same convention log/slog uses.
package logging
