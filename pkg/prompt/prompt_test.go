package prompt_test

import (
	"strings"
	"testing"

	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postTemplate = `Rate the sentiment of the post from 1 to 5.

Example output:
{
"reason": "bullish on AI",
"sentiment": 4
}

Title:
{title}

Post:
{body}
`

func TestBuild(t *testing.T) {
	t.Run("substitutes every placeholder", func(t *testing.T) {
		got, err := prompt.Build(postTemplate, map[string]any{"title": "The Future of AI", "body": "It will change everything."})
		require.NoError(t, err)
		assert.Contains(t, got, "Title:\nThe Future of AI\n")
		assert.Contains(t, got, "Post:\nIt will change everything.\n")
		assert.NotContains(t, got, "{title}")
		assert.NotContains(t, got, "{body}")
		assert.Contains(t, got, "\"sentiment\": 4", "JSON example braces are left alone")
	})

	t.Run("order and repetition do not matter", func(t *testing.T) {
		got, err := prompt.Build("{b}-{a}-{b}", map[string]any{"a": "1", "b": "2"})
		require.NoError(t, err)
		assert.Equal(t, "2-1-2", got)
	})

	t.Run("unused values are ignored", func(t *testing.T) {
		got, err := prompt.Build("hello {name}", map[string]any{"name": "ada", "user_id": 7})
		require.NoError(t, err)
		assert.Equal(t, "hello ada", got)
	})

	t.Run("missing placeholder fails regardless of other keys", func(t *testing.T) {
		_, err := prompt.Build("{title} {body}", map[string]any{"title": "t", "tilte": "x", "Body": "y"})
		var terr *prompt.TemplateError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "body", terr.MissingField)
	})

	t.Run("values are inserted literally", func(t *testing.T) {
		got, err := prompt.Build("{a}|{b}", map[string]any{"a": "{b}", "b": "x"})
		require.NoError(t, err)
		assert.Equal(t, "{b}|x", got)
	})

	t.Run("typed values", func(t *testing.T) {
		got, err := prompt.Build("{i} {f} {b} {l} {n}", map[string]any{
			"i": int64(42), "f": 0.25, "b": true, "l": []any{"x", "y"}, "n": nil,
		})
		require.NoError(t, err)
		assert.Equal(t, `42 0.25 true ["x","y"] `, got)
	})

	t.Run("deterministic", func(t *testing.T) {
		values := map[string]any{"title": "t", "body": "b"}
		first, err := prompt.Build(postTemplate, values)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := prompt.Build(postTemplate, values)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("no placeholders", func(t *testing.T) {
		got, err := prompt.Build("static", nil)
		require.NoError(t, err)
		assert.Equal(t, "static", got)
	})
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"title", "body"}, prompt.Placeholders(postTemplate))
	assert.Empty(t, prompt.Placeholders("no {placeholders here} {}"))
}

func TestCheckTemplate(t *testing.T) {
	input := models.Schema{
		{Name: "title", Type: models.StringFieldType, Required: true},
		{Name: "body", Type: models.StringFieldType, Required: true},
		{Name: "user_id", Type: models.IntegerFieldType, Required: true},
		{Name: "lang", Type: models.StringFieldType},
	}

	unused, err := prompt.CheckTemplate(postTemplate, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_id"}, unused)

	_, err = prompt.CheckTemplate(postTemplate+"{author}", input)
	var terr *prompt.TemplateError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "author", terr.MissingField)
	assert.True(t, strings.Contains(err.Error(), "{author}"))
}
