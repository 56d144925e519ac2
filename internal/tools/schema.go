package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects the JSON schema of T. Struct fields use their json
// tags for names; fields without omitempty are required.
func SchemaFor[T any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

// ValidateArgs checks args against schema: required fields must be
// present, known fields must match their primitive type, and unknown
// fields are rejected when the schema forbids additional properties.
// A nil schema accepts anything.
func ValidateArgs(args map[string]any, schema *jsonschema.Schema) error {
	if schema == nil {
		return nil
	}

	for _, field := range schema.Required {
		if _, ok := args[field]; !ok {
			return fmt.Errorf("%w: missing required field %q", ErrSchemaValidation, field)
		}
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var prop *jsonschema.Schema
		if schema.Properties != nil {
			prop, _ = schema.Properties.Get(key)
		}
		if prop == nil {
			if schema.AdditionalProperties == jsonschema.FalseSchema {
				return fmt.Errorf("%w: unexpected field %q", ErrSchemaValidation, key)
			}
			continue
		}
		if err := checkType(args[key], prop.Type); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrSchemaValidation, key, err)
		}
	}
	return nil
}

func checkType(value any, want string) error {
	if want == "" {
		return nil
	}
	got := jsonType(value)
	switch {
	case got == want:
		return nil
	case want == "number" && got == "integer":
		return nil
	case want == "integer" && got == "number":
		if f, ok := toFloat(value); ok && f == math.Trunc(f) {
			return nil
		}
	}
	return fmt.Errorf("expected %s, got %s", want, got)
}

// jsonType names the JSON type of a decoded value. Whole numbers report
// "integer" so callers can accept them for either numeric type.
func jsonType(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32:
		if float64(v) == math.Trunc(float64(v)) {
			return "integer"
		}
		return "number"
	case float64:
		if v == math.Trunc(v) {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	return 0, false
}

// paramSummary renders a schema's properties as `"a": number, "b": number`
// for prompt text.
func paramSummary(schema *jsonschema.Schema) string {
	if schema == nil || schema.Properties == nil {
		return ""
	}
	var parts []string
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		typ := "any"
		if pair.Value != nil && pair.Value.Type != "" {
			typ = pair.Value.Type
		}
		parts = append(parts, fmt.Sprintf("%q: %s", pair.Key, typ))
	}
	return strings.Join(parts, ", ")
}
