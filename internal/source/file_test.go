package source_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ignatij/goclassify/internal/source"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		file     string
		content  string
		expected []service.Record
	}{
		{
			name:    "JSON array",
			file:    "a.json",
			content: `[{"id": 1, "text": "one"}, {"id": "two", "text": "two", "stars": 4}]`,
			expected: []service.Record{
				{ExternalID: "1", Fields: map[string]any{"text": "one"}},
				{ExternalID: "two", Fields: map[string]any{"text": "two", "stars": json.Number("4")}},
			},
		},
		{
			name:    "JSON object",
			file:    "b.json",
			content: ` {"text": "alone"} `,
			expected: []service.Record{
				{Fields: map[string]any{"text": "alone"}},
			},
		},
		{
			name:    "JSON lines",
			file:    "c.jsonl",
			content: "{\"id\": \"x\", \"text\": \"first\"}\n\n{\"id\": \"y\", \"text\": \"second\"}\n",
			expected: []service.Record{
				{ExternalID: "x", Fields: map[string]any{"text": "first"}},
				{ExternalID: "y", Fields: map[string]any{"text": "second"}},
			},
		},
		{
			name:    "YAML sequence",
			file:    "d.yaml",
			content: "- id: r1\n  text: hello\n  stars: 5\n  tags: [a, b]\n",
			expected: []service.Record{
				{ExternalID: "r1", Fields: map[string]any{"text": "hello", "stars": 5, "tags": []any{"a", "b"}}},
			},
		},
		{
			name:     "Empty YAML",
			file:     "e.yml",
			content:  "",
			expected: []service.Record{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			records, err := source.ReadFile(path, source.DefaultIDField)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, records)
		})
	}
}

func TestReadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := source.ReadFile(writeFile(t, dir, "a.csv", "id,text\n"), "id")
	assert.ErrorContains(t, err, "unsupported record file extension")

	_, err = source.ReadFile(writeFile(t, dir, "b.jsonl", "{\"text\": \"ok\"}\n{broken\n"), "id")
	assert.ErrorContains(t, err, "line 2")

	_, err = source.ReadFile(filepath.Join(dir, "missing.json"), "id")
	assert.Error(t, err)
}

func TestFileDownloader_Records(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2024/05/a.json", `[{"id": "a", "text": "first"}]`)
	writeFile(t, dir, "2024/b.yaml", "- id: b\n  text: second\n")
	writeFile(t, dir, "notes.txt", "not a record file")

	d := source.NewFileDownloader(dir, "")
	var _ service.BulkDownloader = d

	records, err := d.Records(context.Background(), "review")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ExternalID)
	assert.Equal(t, "b", records[1].ExternalID)

	assert.True(t, d.Match(filepath.Join(dir, "2024/05/c.jsonl")))
	assert.False(t, d.Match(filepath.Join(dir, "notes.txt")))

	only := source.NewFileDownloader(dir, "*.json")
	records, err = only.Records(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = source.NewFileDownloader(dir, "[").Records(context.Background(), "")
	assert.ErrorContains(t, err, "invalid file pattern")
}
