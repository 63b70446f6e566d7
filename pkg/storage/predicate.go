package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ignatij/goclassify/pkg/models"
)

// Op is a comparison operator of a Predicate.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Predicate compares one response field with a literal, e.g. sentiment>=3.
type Predicate struct {
	Field string
	Op    Op
	Value string
}

func (p Predicate) String() string {
	return p.Field + string(p.Op) + p.Value
}

// ParsePredicate parses "field<op>value".
func ParsePredicate(s string) (Predicate, error) {
	idx := strings.IndexAny(s, "=!<>")
	if idx <= 0 {
		return Predicate{}, fmt.Errorf("invalid predicate %q: expected field<op>value", s)
	}
	field := strings.TrimSpace(s[:idx])
	rest := s[idx:]

	var op Op
	for _, candidate := range []Op{OpLe, OpGe, OpNe, OpEq, OpLt, OpGt} {
		if strings.HasPrefix(rest, string(candidate)) {
			op = candidate
			break
		}
	}
	if op == "" {
		return Predicate{}, fmt.Errorf("invalid predicate %q: unknown operator", s)
	}
	if field == "" {
		return Predicate{}, fmt.Errorf("invalid predicate %q: missing field", s)
	}
	return Predicate{Field: field, Op: op, Value: strings.TrimSpace(rest[len(op):])}, nil
}

// Matches reports whether fields satisfy the predicate. A missing field never matches.
// Numeric values are compared as numbers, everything else as text.
func (p Predicate) Matches(fields models.Payload) bool {
	v, ok := fields[p.Field]
	if !ok || v == nil {
		return false
	}

	var cmp int
	if left, ok := number(v); ok {
		right, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			return p.Op == OpNe
		}
		switch {
		case left < right:
			cmp = -1
		case left > right:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(text(v), p.Value)
	}

	switch p.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
