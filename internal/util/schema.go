package util

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// ValidationError reports the first argument that does not satisfy a
// parameter schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives an object schema from the exported fields of a
// struct. Supported tags:
//
//	json:"name,omitempty"   property name; omitempty makes it optional
//	description:"..."       property description
//	enum:"a,b,c"            allowed values
//
// Non-pointer fields without omitempty are required.
func CreateSchema(structType any) map[string]any {
	props := map[string]any{}
	var required []string

	t := reflect.TypeOf(structType)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(t) {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}

			prop := map[string]any{"type": jsonType(f.Type)}
			if d := f.Tag.Get("description"); d != "" {
				prop["description"] = d
			}
			if e := f.Tag.Get("enum"); e != "" {
				prop["enum"] = strings.Split(e, ",")
			}
			props[name] = prop

			if f.Type.Kind() != reflect.Pointer && !slices.Contains(strings.Split(opts, ","), "omitempty") {
				required = append(required, name)
			}
		}
	}

	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RequiredFields returns the "required" list of a schema, accepting both
// []string (CreateSchema) and []any (decoded JSON).
func RequiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// PlainInputField returns the property a plain-text input binds to: the
// only required property, provided it is a string.
func PlainInputField(schema map[string]any) (string, bool) {
	req := RequiredFields(schema)
	if len(req) != 1 {
		return "", false
	}
	prop, _ := property(schema, req[0])
	if typ, _ := prop["type"].(string); typ != "string" {
		return "", false
	}
	return req[0], true
}

// ValidateParameters checks params against schema: required presence,
// primitive types and enums. Unknown params are allowed. Fields are checked
// in name order so the reported error is deterministic.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, name := range RequiredFields(schema) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := property(schema, name)
		if !ok {
			continue
		}
		value := params[name]
		typ, _ := prop["type"].(string)
		if !matchesType(value, typ) {
			return &ValidationError{Field: name, Value: value, Message: fmt.Sprintf("expected type %s, got %T", typ, value)}
		}
		if allowed := enumValues(prop); value != nil && len(allowed) > 0 && !slices.Contains(allowed, fmt.Sprint(value)) {
			return &ValidationError{Field: name, Value: value, Message: "must be one of " + strings.Join(allowed, ", ")}
		}
	}
	return nil
}

func property(schema map[string]any, name string) (map[string]any, bool) {
	props, _ := schema["properties"].(map[string]any)
	prop, ok := props[name].(map[string]any)
	return prop, ok
}

func enumValues(prop map[string]any) []string {
	switch e := prop["enum"].(type) {
	case []string:
		return e
	case []any:
		out := make([]string, 0, len(e))
		for _, v := range e {
			out = append(out, fmt.Sprint(v))
		}
		return out
	}
	return nil
}

func jsonType(t reflect.Type) string {
	switch k := t.Kind(); {
	case k == reflect.Pointer:
		return jsonType(t.Elem())
	case k == reflect.Bool:
		return "boolean"
	case k >= reflect.Int && k <= reflect.Uint64:
		return "integer"
	case k == reflect.Float32 || k == reflect.Float64:
		return "number"
	case k == reflect.Slice || k == reflect.Array:
		return "array"
	case k == reflect.Map || k == reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// matchesType reports whether value (as produced by encoding/json or Go
// callers) fits a JSON schema type. nil and unknown types always match.
func matchesType(value any, typ string) bool {
	if value == nil {
		return true
	}
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		n, ok := toFloat(value)
		return ok && n == math.Trunc(n)
	case "number":
		_, ok := toFloat(value)
		return ok
	case "array":
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "object":
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Map || k == reflect.Struct
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	case rv.CanFloat():
		return rv.Float(), true
	}
	return 0, false
}
