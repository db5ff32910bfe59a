package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Func is the plain function signature wrapped by NewFunctionTool.
type Func func(ctx context.Context, args map[string]any) (any, error)

// NewFunctionTool exposes a plain Go function as a Tool.
//
// The returned value is rendered into a single text block: strings verbatim,
// Result values as-is, everything else as JSON. Errors returned by fn are
// propagated unchanged.
//
// Example:
//
//	sum := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Func) *Tool {
	return &Tool{
		Name:        name,
		Label:       name,
		Description: description,
		Parameters:  parameters,
		Execute: func(ctx context.Context, _ ResolveContext, _ string, args map[string]any) (Result, error) {
			out, err := fn(ctx, args)
			if err != nil {
				return Result{}, err
			}
			return toResult(out)
		},
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using reflection.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sum := NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers", SumArgs{}, fn)
func NewFunctionToolFromStruct(name, description string, structType any, fn Func) *Tool {
	return NewFunctionTool(name, description, CreateSchema(structType), fn)
}

func toResult(v any) (Result, error) {
	switch x := v.(type) {
	case nil:
		return TextResult(""), nil
	case Result:
		return x, nil
	case string:
		return TextResult(x), nil
	case fmt.Stringer:
		return TextResult(x.String()), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return Result{}, fmt.Errorf("encode tool result: %w", err)
		}
		return TextResult(string(b)), nil
	}
}
