// Package prompt renders classification prompts from templates with {field} placeholders.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/ignatij/goclassify/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// TemplateError reports a placeholder that has no value.
type TemplateError struct {
	MissingField string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template placeholder {%s} has no matching field", e.MissingField)
}

// Placeholders returns the distinct placeholder names of template in order of first appearance.
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// Build substitutes every {name} in template with the formatted value of values[name].
// Substitution is a single literal pass: text inserted from a value is never re-expanded.
// Entries of values that the template does not reference are ignored.
func Build(template string, values map[string]any) (string, error) {
	for _, name := range Placeholders(template) {
		if _, ok := values[name]; !ok {
			return "", &TemplateError{MissingField: name}
		}
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		return format(values[m[1:len(m)-1]])
	}), nil
}

// CheckTemplate verifies that every placeholder in template is a declared input field.
// It returns the required input fields the template never mentions, which callers may
// want to warn about.
func CheckTemplate(template string, input models.Schema) (unused []string, err error) {
	used := make(map[string]struct{})
	for _, name := range Placeholders(template) {
		if _, ok := input.Field(name); !ok {
			return nil, &TemplateError{MissingField: name}
		}
		used[name] = struct{}{}
	}
	for _, f := range input {
		if _, ok := used[f.Name]; !ok && f.Required {
			unused = append(unused, f.Name)
		}
	}
	return unused, nil
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
