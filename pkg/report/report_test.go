package report_test

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/report"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed stores a review task with one response per score. Score 0 means the
// response has no score.
func seed(t *testing.T, scores ...int64) storage.Store {
	t.Helper()
	store := storage.NewMemoryStore()
	taskID, err := store.SaveTaskDefinition(models.TaskDefinition{
		Name:           "reviews",
		PromptTemplate: "Classify {text}",
		InputSchema:    models.Schema{{Name: "text", Type: models.StringFieldType, Required: true}},
		ResponseSchema: models.Schema{
			{Name: "label", Type: models.StringFieldType, Required: true},
			{Name: "score", Type: models.IntegerFieldType},
			{Name: "tags", Type: models.ArrayFieldType, Items: models.StringFieldType},
		},
	})
	require.NoError(t, err)

	for i, score := range scores {
		inputID, err := store.SaveInput(models.ClassificationInput{
			TaskID:     taskID,
			ExternalID: string(rune('a' + i)),
			Category:   "review",
			Fields:     models.Payload{"text": "review, \"quoted\""},
			CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		fields := models.Payload{"label": "ok", "tags": []any{"x", "y"}}
		if score != 0 {
			fields["score"] = score
		}
		_, err = store.SaveResponse(models.ClassificationResponse{InputID: inputID, Fields: fields, Model: "m"})
		require.NoError(t, err)
	}
	return store
}

func readCSV(t *testing.T, b *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(b).ReadAll()
	require.NoError(t, err)
	return records
}

func TestReporter_Summarize(t *testing.T) {
	r := report.NewReporter(seed(t, 2, 4, 0, 6))

	st, err := r.Summarize("reviews", "score", time.Time{}, report.DefaultBreakpoints)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Count, "responses without the field are skipped")
	assert.InDelta(t, 4.0, st.Mean, 1e-9)

	_, err = r.Summarize("reviews", "label", time.Time{}, 5)
	assert.ErrorContains(t, err, "not numeric")
	_, err = r.Summarize("reviews", "confidence", time.Time{}, 5)
	assert.ErrorContains(t, err, "no response field")
	_, err = r.Summarize("missing", "score", time.Time{}, 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = r.Summarize("reviews", "score", time.Now().Add(time.Hour), 5)
	assert.ErrorIs(t, err, report.ErrNoValues)
}

func TestReporter_Export(t *testing.T) {
	r := report.NewReporter(seed(t, 2, 9, 7))

	var buf bytes.Buffer
	n, err := r.Export(&buf, "reviews", storage.ResponseFilter{
		Predicates: []storage.Predicate{{Field: "score", Op: storage.OpGe, Value: "7"}},
	}, []string{"external_id", "text", "created_at"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want := [][]string{
		{"external_id", "text", "created_at", "label", "score", "tags"},
		{"b", "review, \"quoted\"", "2024-05-01T12:00:00Z", "ok", "9", `["x","y"]`},
		{"c", "review, \"quoted\"", "2024-05-01T12:00:00Z", "ok", "7", `["x","y"]`},
	}
	if diff := cmp.Diff(want, readCSV(t, &buf)); diff != "" {
		t.Errorf("exported CSV mismatch (-want +got):\n%s", diff)
	}
}

func TestReporter_Export_DefaultColumnsAndErrors(t *testing.T) {
	r := report.NewReporter(seed(t, 3))

	var buf bytes.Buffer
	n, err := r.Export(&buf, "reviews", storage.ResponseFilter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	records := readCSV(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"id", "external_id", "category", "created_at", "label", "score", "tags"}, records[0])
	assert.Equal(t, "review", records[1][2])

	_, err = r.Export(&bytes.Buffer{}, "reviews", storage.ResponseFilter{}, []string{"body"})
	assert.ErrorContains(t, err, "unknown input column")

	_, err = r.Export(&bytes.Buffer{}, "reviews", storage.ResponseFilter{
		Predicates: []storage.Predicate{{Field: "confidence", Op: storage.OpGt, Value: "1"}},
	}, nil)
	assert.ErrorContains(t, err, "no response field")

	buf.Reset()
	n, err = r.Export(&buf, "reviews", storage.ResponseFilter{Category: "email"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, readCSV(t, &buf), 1, "header only")
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "empty", in: "", want: time.Time{}},
		{name: "date", in: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "timestamp", in: "2024-03-01T10:30:00Z", want: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{name: "garbage", in: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := report.ParseSince(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}
