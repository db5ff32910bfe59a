// Package model defines the provider‑agnostic connector contract used by the
// agentic loop.
//
// Core goals:
//   - Hide each provider's wire format behind one canonical event stream
//   - Describe callable models (Descriptor) independent of any SDK
//   - Look connectors up by id or by provider (Registry)
//   - Facilitate deterministic tests (MockConnector)
//
// Providers (OpenAI, Anthropic, Gemini, OpenAI-compatible endpoints) live in
// sub-packages and implement Connector so higher layers remain decoupled from
// vendor SDKs.
package model
