package parser_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ignatij/goclassify/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "fenced with prose",
			raw:  "Sure! ```json\n{\"a\":1}\n```",
			want: map[string]any{"a": json.Number("1")},
		},
		{
			name: "bare object",
			raw:  `{"reason": "fine", "sentiment": 3}`,
			want: map[string]any{"reason": "fine", "sentiment": json.Number("3")},
		},
		{
			name: "surrounding whitespace",
			raw:  "\n\n  {\"ok\": true}  \n",
			want: map[string]any{"ok": true},
		},
		{
			name: "braces inside strings",
			raw:  `Here you go: {"reason": "uses } and { and \"quotes\"", "n": 2} hope that helps {"b": 1}`,
			want: map[string]any{"reason": `uses } and { and "quotes"`, "n": json.Number("2")},
		},
		{
			name: "nested objects",
			raw:  "```\n{\"outer\": {\"inner\": [1, {\"x\": null}]}}\n```",
			want: map[string]any{"outer": map[string]any{"inner": []any{json.Number("1"), map[string]any{"x": nil}}}},
		},
		{
			name: "placeholder prose before fenced answer",
			raw:  "I will fill the {reason} field.\n```json\n{\"reason\":\"ok\",\"sentiment\":4}\n```",
			want: map[string]any{"reason": "ok", "sentiment": json.Number("4")},
		},
		{
			name: "placeholder prose before bare answer",
			raw:  `Filling {reason} and {sentiment}: {"reason": "ok", "sentiment": 2}`,
			want: map[string]any{"reason": "ok", "sentiment": json.Number("2")},
		},
		{
			name: "fence preferred over earlier example object",
			raw:  "Format: {\"reason\": \"...\"}\n```json\n{\"reason\": \"real\"}\n```",
			want: map[string]any{"reason": "real"},
		},
		{
			name: "large integer keeps precision",
			raw:  `{"id": 9007199254740993}`,
			want: map[string]any{"id": json.Number("9007199254740993")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parser.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no json", raw: "no json here"},
		{name: "empty", raw: ""},
		{name: "unbalanced", raw: `{"a": {"b": 1}`},
		{name: "invalid span", raw: `{"a": 1,}`},
		{name: "single quotes", raw: `{'a': 1}`},
		{name: "array only", raw: `[1, 2, 3]`},
		{name: "only placeholders", raw: "fill {reason} and {sentiment}"},
		{name: "invalid fence and no other object", raw: "```json\n{oops}\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parser.Parse(tt.raw)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, parser.ErrMalformed), "expected ErrMalformed, got %v", err)
			var perr *parser.ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestCompact(t *testing.T) {
	assert.Equal(t, `{"a":"<b>"}`, parser.Compact(map[string]any{"a": "<b>"}))
}
