package util

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ErrIrreducibleSchema is returned by NormalizeSchema when a schema cannot be
// expressed as a single object schema.
var ErrIrreducibleSchema = errors.New("schema is not reducible to an object schema")

// unionKeywords are the alternative-branch constructs flattened by NormalizeSchema.
var unionKeywords = []string{"anyOf", "oneOf", "allOf"}

// CreateSchema creates a JSON schema from a Go struct using reflection.
// This is a convenience function for creating parameter schemas from Go types.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	properties := make(map[string]any)
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				fieldName = parts[0]
			}
		}

		fieldSchema := map[string]any{
			"type": getJSONType(field.Type),
		}

		if description := field.Tag.Get("description"); description != "" {
			fieldSchema["description"] = description
		}

		properties[fieldName] = fieldSchema

		if !hasOmitEmpty(field.Tag.Get("json")) && !isPointer(field.Type) {
			required = append(required, fieldName)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// NormalizeSchema reduces a parameter schema to a single top-level object
// schema. Union constructs (anyOf / oneOf / allOf) whose branches are object
// schemas are flattened into one object holding the union of all properties.
// A property stays required when every anyOf/oneOf branch requires it, or when
// any allOf branch does. The input is never mutated and normalizing an already
// normalized schema returns an equal schema.
func NormalizeSchema(schema map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range schema {
		out[k] = DeepCopy(v)
	}

	if t, ok := out["type"]; ok && t != "object" {
		return nil, fmt.Errorf("%w: top-level type %v", ErrIrreducibleSchema, t)
	}

	props, ok := asMap(out["properties"])
	if !ok && out["properties"] != nil {
		return nil, fmt.Errorf("%w: properties is %T", ErrIrreducibleSchema, out["properties"])
	}
	if props == nil {
		props = map[string]any{}
	}
	required := toStringSlice(out["required"])

	for _, kw := range unionKeywords {
		raw, present := out[kw]
		if !present {
			continue
		}
		delete(out, kw)

		branches, ok := raw.([]any)
		if !ok {
			if typed, ok2 := raw.([]map[string]any); ok2 {
				for _, b := range typed {
					branches = append(branches, b)
				}
			} else {
				return nil, fmt.Errorf("%w: %s is %T", ErrIrreducibleSchema, kw, raw)
			}
		}

		var common []string
		for i, rawBranch := range branches {
			branch, ok := asMap(rawBranch)
			if !ok {
				return nil, fmt.Errorf("%w: %s branch %d is %T", ErrIrreducibleSchema, kw, i, rawBranch)
			}
			nb, err := NormalizeSchema(branch)
			if err != nil {
				return nil, fmt.Errorf("%s branch %d: %w", kw, i, err)
			}
			for name, p := range nb["properties"].(map[string]any) {
				if _, exists := props[name]; !exists {
					props[name] = p
				}
			}
			br := toStringSlice(nb["required"])
			if kw == "allOf" {
				required = appendUnique(required, br...)
				continue
			}
			if i == 0 {
				common = br
			} else {
				common = intersect(common, br)
			}
		}
		required = appendUnique(required, common...)
	}

	out["type"] = "object"
	out["properties"] = props
	if len(required) > 0 {
		out["required"] = required
	} else {
		delete(out, "required")
	}

	return out, nil
}

// scrubbedKeywords lists, per provider, the schema keywords that provider
// rejects in tool parameter schemas.
var scrubbedKeywords = map[string][]string{
	"google":    {"$schema", "$id", "$ref", "$defs", "definitions", "additionalProperties", "default", "examples", "const", "patternProperties"},
	"openai":    {"$schema", "$id"},
	"anthropic": {"$schema", "$id"},
}

// ScrubSchema removes keywords the target provider rejects. It recurses into
// properties, items and nested unions. For "google" only the enum and
// date-time string formats survive. Pure and idempotent.
func ScrubSchema(schema map[string]any, provider string) map[string]any {
	drop := map[string]bool{}
	for _, k := range scrubbedKeywords[provider] {
		drop[k] = true
	}
	out, _ := scrub(schema, drop, provider == "google").(map[string]any)
	return out
}

func scrub(v any, drop map[string]bool, restrictFormat bool) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if drop[k] {
				continue
			}
			if k == "format" && restrictFormat {
				if f, _ := val.(string); f != "enum" && f != "date-time" {
					continue
				}
			}
			if k == "properties" {
				if props, ok := val.(map[string]any); ok {
					np := make(map[string]any, len(props))
					for name, p := range props {
						np[name] = scrub(p, drop, restrictFormat)
					}
					out[k] = np
					continue
				}
			}
			out[k] = scrub(val, drop, restrictFormat)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = scrub(e, drop, restrictFormat)
		}
		return out
	default:
		return DeepCopy(v)
	}
}

// ValidateParameters validates parameters against a JSON schema.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, fieldName := range toStringSlice(schema["required"]) {
		if _, exists := params[fieldName]; !exists {
			return &ValidationError{
				Field:   fieldName,
				Message: "required field is missing",
			}
		}
	}

	// Validate field types
	properties, _ := schema["properties"].(map[string]any)
	for fieldName, value := range params {
		propSchema, exists := properties[fieldName]
		if !exists {
			continue // Allow extra fields
		}

		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		expectedType, _ := propMap["type"].(string)
		if !isValidType(value, expectedType) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
			}
		}
	}

	return nil
}

// DeepCopy clones JSON-shaped values (maps, slices, scalars).
func DeepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = DeepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = DeepCopy(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// toStringSlice accepts both []string and the []any shape produced by JSON decoding.
func toStringSlice(v any) []string {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}

// getJSONType returns the JSON schema type for a given Go type.
func getJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return getJSONType(t.Elem())
	default:
		return "string"
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isPointer checks if a type is a pointer.
func isPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true // nil is valid for any type
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling often produces float64 for numbers
			return v == float64(int64(v)) // Check if it's actually an integer
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}
