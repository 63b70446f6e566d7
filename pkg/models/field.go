package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	StringFieldType  FieldType = "string"
	IntegerFieldType FieldType = "integer"
	NumberFieldType  FieldType = "number"
	BooleanFieldType FieldType = "boolean"
	ArrayFieldType   FieldType = "array"
	ObjectFieldType  FieldType = "object"
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case StringFieldType, IntegerFieldType, NumberFieldType, BooleanFieldType, ArrayFieldType, ObjectFieldType:
		return true
	}
	return false
}

// Field describes a single named value in an input or response payload.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Enum        []any     `json:"enum,omitempty" yaml:"enum,omitempty"`   // allowed values for string/integer/number fields
	Min         *float64  `json:"min,omitempty" yaml:"min,omitempty"`     // inclusive lower bound for numeric fields
	Max         *float64  `json:"max,omitempty" yaml:"max,omitempty"`     // inclusive upper bound for numeric fields
	Items       FieldType `json:"items,omitempty" yaml:"items,omitempty"` // element type for array fields
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schema is an ordered list of field declarations.
type Schema []Field

// Field returns the declaration named name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the field names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Payload is a loosely-typed field name to value mapping. It is persisted as a JSON document.
type Payload map[string]any

// Value implements driver.Valuer. The JSON text is sent as a string so that both
// TEXT (sqlite) and JSONB (postgres) columns accept it.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Payload{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Payload", src)
	}
	out := Payload{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	*p = out
	return nil
}
