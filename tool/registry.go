package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentwire/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry maps tool names to implementations. Register replaces by name;
// tools whose schema cannot be normalized are kept out of every resolved set.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	tools    map[string]*Tool
	rejected map[string]error
	logger   logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		tools:    make(map[string]*Tool),
		rejected: make(map[string]error),
		logger:   opts.Logger,
	}
}

// Register inserts t or replaces the tool of the same name. The parameter
// schema is normalized once here; a schema that cannot be normalized marks
// the tool rejected and it is never resolved.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.tools[t.Name]; !seen {
		if _, seenRejected := r.rejected[t.Name]; !seenRejected {
			r.order = append(r.order, t.Name)
		}
	}

	normalized, err := Normalize(t.Parameters)
	if err != nil {
		r.logger.Warn("tool.register.schema_rejected", "tool", t.Name, "error", err.Error())
		delete(r.tools, t.Name)
		r.rejected[t.Name] = err
		return
	}

	cp := *t
	cp.Parameters = normalized
	r.tools[t.Name] = &cp
	delete(r.rejected, t.Name)
}

// Unregister removes a tool, including a rejected one. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tools, name)
	delete(r.rejected, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the registered tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Rejected returns the normalization error of a rejected tool.
func (r *Registry) Rejected(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.rejected[name]
}

// Names lists registered (non-rejected) tools in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for _, n := range r.order {
		if _, ok := r.tools[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// ResolveAll returns the tools eligible under rc in registration order. Tools
// missing a required capability, and owner-only tools for non-owners, are
// silently omitted.
func (r *Registry) ResolveAll(rc ResolveContext) *Set {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := &Set{byName: make(map[string]*ResolvedTool)}
	for _, name := range r.order {
		t, ok := r.tools[name]
		if !ok || !eligible(t, rc) {
			continue
		}
		rt := &ResolvedTool{Tool: t, Context: rc}
		set.tools = append(set.tools, rt)
		set.byName[name] = rt
	}
	return set
}

func eligible(t *Tool, rc ResolveContext) bool {
	if t.OwnerOnly && !rc.Owner {
		return false
	}
	for _, c := range t.Requires {
		if !rc.Has(c) {
			return false
		}
	}
	return true
}

// Execute validates args against the tool's normalized schema and invokes
// it. Validation failures are returned as *ToolError wrapping the
// *ValidationError; failures raised by the tool are propagated verbatim.
func (r *Registry) Execute(ctx context.Context, rt *ResolvedTool, callID string, args map[string]any) (Result, error) {
	start := time.Now()
	t := rt.Tool

	r.logger.Debug("tool.call.start", "tool", t.Name, "call_id", callID)

	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateParameters(args, t.Parameters); err != nil {
		r.logger.Warn("tool.call.validation_failed", "tool", t.Name, "error", err.Error())

		return Result{}, &ToolError{
			Tool:    t.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Err:     err,
		}
	}

	if t.Execute == nil {
		return Result{}, NewToolError(t.Name, "tool has no implementation", CodeExecution)
	}

	res, err := t.Execute(ctx, rt.Context, callID, args)
	if err != nil {
		r.logger.Debug("tool.call.error", "tool", t.Name, "error", err.Error())
		return Result{}, err
	}

	r.logger.Debug("tool.call.success", "tool", t.Name, "duration_ms", time.Since(start).Milliseconds())

	return res, nil
}

// ResolvedTool is a tool materialized against one ResolveContext.
type ResolvedTool struct {
	Tool    *Tool
	Context ResolveContext
}

// Definition returns the model-facing description of the tool.
func (rt *ResolvedTool) Definition() Definition {
	return Definition{Name: rt.Tool.Name, Description: rt.Tool.Description, Parameters: rt.Tool.Parameters}
}

// Set is an ordered, context-filtered collection of tools.
type Set struct {
	tools  []*ResolvedTool
	byName map[string]*ResolvedTool
}

// Lookup finds a resolved tool by name.
func (s *Set) Lookup(name string) (*ResolvedTool, bool) {
	if s == nil {
		return nil, false
	}
	rt, ok := s.byName[name]
	return rt, ok
}

// Tools returns the resolved tools in order.
func (s *Set) Tools() []*ResolvedTool {
	if s == nil {
		return nil
	}
	return append([]*ResolvedTool(nil), s.tools...)
}

// Names returns the resolved tool names in order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.tools))
	for i, rt := range s.tools {
		names[i] = rt.Tool.Name
	}
	return names
}

// Len returns the number of resolved tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tools)
}

// Definitions returns the model-facing definitions in order.
func (s *Set) Definitions() []Definition {
	if s == nil {
		return nil
	}
	defs := make([]Definition, len(s.tools))
	for i, rt := range s.tools {
		defs[i] = rt.Definition()
	}
	return defs
}
