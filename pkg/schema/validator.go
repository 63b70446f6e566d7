// Package schema validates loosely-typed payloads against runtime field declarations.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ignatij/goclassify/pkg/models"
)

// ValidationError reports the first field that does not conform to a schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks payload against s and returns a normalized copy: integers become
// int64, numbers float64, and null optional fields are dropped. The schema is closed,
// so any payload key that s does not declare is rejected. Validation stops at the
// first violation.
func Validate(s models.Schema, payload map[string]any) (models.Payload, error) {
	out := make(models.Payload, len(payload))
	for _, f := range s {
		v, ok := payload[f.Name]
		if !ok || v == nil {
			if f.Required {
				if ok {
					return nil, invalid(f.Name, "required field is null")
				}
				return nil, invalid(f.Name, "required field is missing")
			}
			continue
		}
		norm, err := checkValue(f.Name, f, v)
		if err != nil {
			return nil, err
		}
		out[f.Name] = norm
	}

	extra := make([]string, 0)
	for k := range payload {
		if _, ok := s.Field(k); !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, invalid(extra[0], "field is not declared in the schema")
	}
	return out, nil
}

func checkValue(path string, f models.Field, v any) (any, error) {
	switch f.Type {
	case models.StringFieldType:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(path, "expected string, got %s", typeName(v))
		}
		if len(f.Enum) > 0 && !inEnum(f.Enum, s) {
			return nil, invalid(path, "value %q is not one of %v", s, f.Enum)
		}
		return s, nil
	case models.IntegerFieldType:
		n, ok := toInt64(v)
		if !ok {
			return nil, invalid(path, "expected integer, got %s", typeName(v))
		}
		if err := checkRange(path, f, float64(n)); err != nil {
			return nil, err
		}
		if len(f.Enum) > 0 && !inEnum(f.Enum, n) {
			return nil, invalid(path, "value %d is not one of %v", n, f.Enum)
		}
		return n, nil
	case models.NumberFieldType:
		n, ok := toFloat64(v)
		if !ok {
			return nil, invalid(path, "expected number, got %s", typeName(v))
		}
		if err := checkRange(path, f, n); err != nil {
			return nil, err
		}
		if len(f.Enum) > 0 && !inEnum(f.Enum, n) {
			return nil, invalid(path, "value %v is not one of %v", n, f.Enum)
		}
		return n, nil
	case models.BooleanFieldType:
		b, ok := v.(bool)
		if !ok {
			return nil, invalid(path, "expected boolean, got %s", typeName(v))
		}
		return b, nil
	case models.ArrayFieldType:
		items, ok := toSlice(v)
		if !ok {
			return nil, invalid(path, "expected array, got %s", typeName(v))
		}
		out := make([]any, len(items))
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				return nil, invalid(itemPath, "array element is null")
			}
			if f.Items == "" {
				out[i] = item
				continue
			}
			norm, err := checkValue(itemPath, models.Field{Name: f.Name, Type: f.Items}, item)
			if err != nil {
				return nil, err
			}
			out[i] = norm
		}
		return out, nil
	case models.ObjectFieldType:
		switch obj := v.(type) {
		case map[string]any:
			return obj, nil
		case models.Payload:
			return map[string]any(obj), nil
		}
		return nil, invalid(path, "expected object, got %s", typeName(v))
	}
	return nil, invalid(path, "unsupported field type %q", f.Type)
}

func checkRange(path string, f models.Field, n float64) error {
	if f.Min != nil && n < *f.Min {
		return invalid(path, "value %v is below minimum %v", n, *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return invalid(path, "value %v is above maximum %v", n, *f.Max)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return toFloat64(float64(n))
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	}
	return nil, false
}

// inEnum compares numerically when both sides are numbers, so an enum declared
// as [1, 2, 3] in YAML matches a decoded JSON 2.0.
func inEnum(enum []any, v any) bool {
	vf, vNumeric := toFloat64(v)
	for _, e := range enum {
		if ef, ok := toFloat64(e); ok && vNumeric {
			if ef == vf {
				return true
			}
			continue
		}
		if e == v {
			return true
		}
	}
	return false
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float32, float64, json.Number:
		return "number"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case []any, []string:
		return "array"
	case map[string]any, models.Payload:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
