// Package tool implements the tool calling subsystem: tools with schema
// validated arguments, a registry that resolves the tools eligible for a
// workspace and executes them, and the schema helpers shared with connectors.
package tool

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/internal/util"
)

// Capability names an environment feature a tool depends on. Tools whose
// capabilities are not supplied by a ResolveContext are omitted on resolution.
type Capability string

const (
	// CapFileSystem requires a FileSystem bridge in the ResolveContext.
	CapFileSystem Capability = "filesystem"
	// CapWorkspace requires a non-empty workspace root.
	CapWorkspace Capability = "workspace"
	// CapSandbox requires a sandboxed context; host command execution is only
	// offered inside one.
	CapSandbox Capability = "sandbox"
)

// FileSystem is the bridge through which tools touch files. Paths are
// relative to the workspace root the bridge was opened on.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	ReadDir(name string) ([]fs.DirEntry, error)
}

// ResolveContext describes the environment tools are materialized against.
type ResolveContext struct {
	// Root is the workspace directory.
	Root string
	// FS is the optional filesystem bridge scoped to Root.
	FS FileSystem
	// Sandboxed reports that tools run inside an isolated environment. It
	// supplies CapSandbox.
	Sandboxed bool
	// AgentID optionally identifies the agent the tools are resolved for.
	AgentID string
	// Owner grants access to OwnerOnly tools.
	Owner bool
}

// Has reports whether the context supplies capability c.
func (rc ResolveContext) Has(c Capability) bool {
	switch c {
	case CapFileSystem:
		return rc.FS != nil
	case CapWorkspace:
		return rc.Root != ""
	case CapSandbox:
		return rc.Sandboxed
	default:
		return false
	}
}

// ExecuteFunc runs a tool call. Arguments have already been validated against
// the tool's normalized schema.
type ExecuteFunc func(ctx context.Context, rc ResolveContext, callID string, args map[string]any) (Result, error)

// Tool is a named capability the model may invoke.
type Tool struct {
	// Name is unique within a registry (snake_case recommended).
	Name string
	// Label is a short human readable title.
	Label string
	// Description is shown to the model.
	Description string
	// Parameters is a JSON-Schema-shaped object contract.
	Parameters map[string]any
	// OwnerOnly tools are only resolved for owner contexts.
	OwnerOnly bool
	// Requires lists capabilities the tool needs from its ResolveContext.
	Requires []Capability
	// Execute is the implementation.
	Execute ExecuteFunc
}

// Result is the output of a successful tool execution.
type Result struct {
	Content []core.Block
	Details map[string]any
}

// TextResult builds a result with a single text block.
func TextResult(text string) Result {
	return Result{Content: []core.Block{core.TextBlock{Text: text}}}
}

// Definition is the model-facing description of a resolved tool.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ErrIrreducibleSchema is returned by Normalize for schemas that cannot be
// reduced to one object schema.
var ErrIrreducibleSchema = util.ErrIrreducibleSchema

// Normalize reduces a parameter schema to a single top-level object schema,
// flattening anyOf / oneOf / allOf branches.
func Normalize(schema map[string]any) (map[string]any, error) {
	return util.NormalizeSchema(schema)
}

// Scrub removes the schema keywords provider rejects. Pure and idempotent.
func Scrub(schema map[string]any, provider string) map[string]any {
	return util.ScrubSchema(schema, provider)
}

// CreateSchema derives an object schema from a struct's json tags.
func CreateSchema(structType any) map[string]any {
	return util.CreateSchema(structType)
}

// ValidateParameters checks required fields and primitive types.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	return util.ValidateParameters(params, schema)
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the underlying cause (for example a *ValidationError).
func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
