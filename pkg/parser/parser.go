// Package parser extracts the JSON object from raw model output.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is matched by every ParseError.
var ErrMalformed = errors.New("malformed response")

// ParseError reports raw output that does not contain a usable JSON object.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrMalformed }

// Parse returns the first well-formed top-level JSON object in raw. The body of
// a ```json fence is tried first; otherwise every balanced {...} span is tried
// in order, so prose such as "fill in {reason}" before the answer is skipped.
// Numbers are decoded as json.Number so that integer fields keep their precision.
func Parse(raw string) (map[string]any, error) {
	if body, ok := fencedJSON(raw); ok {
		if out, err := scan(body); err == nil {
			return out, nil
		}
	}
	return scan(raw)
}

// scan tries each balanced span starting at a '{' until one decodes to an object.
func scan(raw string) (map[string]any, error) {
	var firstErr error
	for from := 0; from < len(raw); {
		start := strings.IndexByte(raw[from:], '{')
		if start < 0 {
			break
		}
		start += from
		end, ok := matchBrace(raw, start)
		if !ok {
			// Everything after an unclosed brace is inside it.
			break
		}
		out, err := decode(raw[start : end+1])
		if err == nil {
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		from = start + 1
	}
	if firstErr != nil {
		return nil, &ParseError{Reason: "invalid JSON object", Err: firstErr}
	}
	return nil, &ParseError{Reason: "no JSON object found"}
}

func decode(span string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// fencedJSON returns the body of the first ```json fence.
func fencedJSON(raw string) (string, bool) {
	const open = "```json"
	i := strings.Index(raw, open)
	if i < 0 {
		return "", false
	}
	body := raw[i+len(open):]
	j := strings.Index(body, "```")
	if j < 0 {
		return "", false
	}
	return body[:j], true
}

// matchBrace returns the index of the '}' closing the '{' at start. Braces
// inside JSON strings are not counted.
func matchBrace(raw string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Compact re-encodes a decoded object; useful for logging what was extracted.
func Compact(obj map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return fmt.Sprint(obj)
	}
	return strings.TrimSpace(buf.String())
}
