package tool

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/hupe1980/agentwire/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	// Required only includes non-pointer, non-omitempty exported fields
	assert.ElementsMatch(t, []string{"a"}, schema["required"])
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"x": 5}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	err = ValidateParameters(map[string]any{"x": "not-int"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")
}

// -------------------- Registry Tests --------------------

type stubFS struct{}

func (stubFS) ReadFile(string) ([]byte, error)      { return nil, nil }
func (stubFS) WriteFile(string, []byte) error       { return nil }
func (stubFS) ReadDir(string) ([]fs.DirEntry, error) { return nil, nil }

func noop(context.Context, ResolveContext, string, map[string]any) (Result, error) {
	return TextResult("ok"), nil
}

func TestRegistry_RegisterReplacesByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "a", Description: "first", Execute: noop})
	r.Register(&Tool{Name: "b", Execute: noop})
	r.Register(&Tool{Name: "a", Description: "second", Execute: noop})

	assert.Equal(t, []string{"a", "b"}, r.Names(), "replacement keeps the original position")
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", got.Description)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, got.Parameters)
}

func TestRegistry_SchemaRejected(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "ok", Execute: noop})
	r.Register(&Tool{Name: "bad", Parameters: map[string]any{"type": "string"}, Execute: noop})

	set := r.ResolveAll(ResolveContext{})
	assert.Equal(t, []string{"ok"}, set.Names())
	assert.ErrorIs(t, r.Rejected("bad"), ErrIrreducibleSchema)

	// A valid re-registration heals the entry.
	r.Register(&Tool{Name: "bad", Execute: noop})
	assert.NoError(t, r.Rejected("bad"))
	assert.Equal(t, []string{"ok", "bad"}, r.ResolveAll(ResolveContext{}).Names())
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "a", Execute: noop})
	r.Register(&Tool{Name: "b", Execute: noop})
	r.Unregister("a")
	r.Unregister("missing")

	assert.Equal(t, []string{"b"}, r.Names())
	r.Register(&Tool{Name: "a", Execute: noop})
	assert.Equal(t, []string{"b", "a"}, r.Names())
}

func TestRegistry_ResolveAllFilters(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "echo", Execute: noop})
	r.Register(&Tool{Name: "read", Requires: []Capability{CapFileSystem}, Execute: noop})
	r.Register(&Tool{Name: "admin", OwnerOnly: true, Execute: noop})

	assert.Equal(t, []string{"echo"}, r.ResolveAll(ResolveContext{Root: "/w"}).Names())
	assert.Equal(t, []string{"echo", "read"}, r.ResolveAll(ResolveContext{Root: "/w", FS: stubFS{}}).Names())
	assert.Equal(t, []string{"echo", "read", "admin"}, r.ResolveAll(ResolveContext{FS: stubFS{}, Owner: true}).Names())

	r.Register(&Tool{Name: "exec", Requires: []Capability{CapSandbox}, Execute: noop})
	assert.NotContains(t, r.ResolveAll(ResolveContext{Root: "/w", FS: stubFS{}, Owner: true}).Names(), "exec")
	assert.Contains(t, r.ResolveAll(ResolveContext{Sandboxed: true}).Names(), "exec")

	rc := ResolveContext{Root: "/w", FS: stubFS{}}
	assert.Equal(t, r.ResolveAll(rc).Definitions(), r.ResolveAll(rc).Definitions(), "resolution is idempotent")

	_, ok := r.ResolveAll(rc).Lookup("admin")
	assert.False(t, ok)
}

func TestRegistry_ExecuteValidates(t *testing.T) {
	called := false
	r := NewRegistry()
	r.Register(&Tool{
		Name: "echo",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"message": map[string]any{"type": "string"}},
			"required":   []string{"message"},
		},
		Execute: func(context.Context, ResolveContext, string, map[string]any) (Result, error) {
			called = true
			return TextResult("x"), nil
		},
	})
	rt, ok := r.ResolveAll(ResolveContext{}).Lookup("echo")
	require.True(t, ok)

	_, err := r.Execute(context.Background(), rt, "c1", map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.False(t, called)
}

func TestRegistry_ExecutePropagatesVerbatim(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry()
	r.Register(&Tool{Name: "fail", Execute: func(context.Context, ResolveContext, string, map[string]any) (Result, error) {
		return Result{}, boom
	}})
	rt, _ := r.ResolveAll(ResolveContext{}).Lookup("fail")

	_, err := r.Execute(context.Background(), rt, "c1", nil)
	assert.Same(t, boom, err)
}

func TestRegistry_ExecutePassesContext(t *testing.T) {
	var gotRoot, gotID string
	r := NewRegistry()
	r.Register(&Tool{Name: "where", Execute: func(_ context.Context, rc ResolveContext, callID string, _ map[string]any) (Result, error) {
		gotRoot, gotID = rc.Root, callID
		return Result{Content: []core.Block{core.ImageBlock{Data: "AA==", MimeType: "image/png"}}}, nil
	}})
	rt, _ := r.ResolveAll(ResolveContext{Root: "/ws"}).Lookup("where")

	res, err := r.Execute(context.Background(), rt, "call-9", nil)
	require.NoError(t, err)
	assert.Equal(t, "/ws", gotRoot)
	assert.Equal(t, "call-9", gotID)
	assert.Equal(t, core.ImageBlock{Data: "AA==", MimeType: "image/png"}, res.Content[0])
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	r := NewRegistry()
	r.Register(NewFunctionTool("sum", "Add numbers", params, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	}))
	rt, _ := r.ResolveAll(ResolveContext{}).Lookup("sum")

	res, err := r.Execute(context.Background(), rt, "fc1", map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, "5", core.JoinText(res.Content))
}

func TestFunctionTool_Results(t *testing.T) {
	ctx := context.Background()
	for name, tc := range map[string]struct {
		out  any
		want string
	}{
		"string": {out: "hi", want: "hi"},
		"nil":    {out: nil, want: ""},
		"map":    {out: map[string]any{"k": 1}, want: `{"k":1}`},
	} {
		t.Run(name, func(t *testing.T) {
			ft := NewFunctionTool("f", "", nil, func(context.Context, map[string]any) (any, error) { return tc.out, nil })
			res, err := ft.Execute(ctx, ResolveContext{}, "id", nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, core.JoinText(res.Content))
		})
	}
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}
