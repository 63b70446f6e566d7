package source_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignatij/goclassify/internal/source"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bulk/{category}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 10, "text": "first " + r.PathValue("category")},
			{"id": 11, "text": "second"},
		})
	})
	mux.HandleFunc("GET /ids/{category}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]any{"a", 2, "missing"})
	})
	mux.HandleFunc("GET /records/{category}/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.Error(w, "no such record", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"text": r.PathValue("category") + " " + r.PathValue("id")})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPDownloader_Bulk(t *testing.T) {
	srv := newAPI(t)
	d, err := source.NewHTTPDownloader(source.HTTPConfig{
		ListURL: srv.URL + "/bulk/{category}",
		Headers: map[string]string{"X-Api-Key": "secret"},
	})
	require.NoError(t, err)
	bulk, ok := d.(service.BulkDownloader)
	require.True(t, ok)
	_, isRecord := d.(service.RecordDownloader)
	assert.False(t, isRecord)

	records, err := bulk.Records(context.Background(), "news feed")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "10", records[0].ExternalID)
	assert.Equal(t, "first news feed", records[0].Fields["text"])
}

func TestHTTPDownloader_Enumerate(t *testing.T) {
	srv := newAPI(t)
	d, err := source.NewHTTPDownloader(source.HTTPConfig{
		ListURL:   srv.URL + "/ids/{category}",
		RecordURL: srv.URL + "/records/{category}/{id}",
	})
	require.NoError(t, err)
	rd, ok := d.(service.RecordDownloader)
	require.True(t, ok)

	ids, err := rd.RecordIDs(context.Background(), "review")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "2", "missing"}, ids)

	rec, err := rd.FetchRecord(context.Background(), "review", "a")
	require.NoError(t, err)
	assert.Equal(t, service.Record{ExternalID: "a", Fields: map[string]any{"text": "review a"}}, rec)

	_, err = rd.FetchRecord(context.Background(), "review", "missing")
	assert.ErrorContains(t, err, "404")
}

func TestHTTPDownloader_ImportsThroughImporter(t *testing.T) {
	srv := newAPI(t)
	store := storage.NewMemoryStore()
	taskID, err := store.SaveTaskDefinition(models.TaskDefinition{
		Name:           "reviews",
		PromptTemplate: "Classify {text}",
		InputSchema:    models.Schema{{Name: "text", Type: models.StringFieldType, Required: true}},
		ResponseSchema: models.Schema{{Name: "label", Type: models.StringFieldType}},
	})
	require.NoError(t, err)

	d, err := source.NewHTTPDownloader(source.HTTPConfig{
		ListURL:   srv.URL + "/ids/{category}",
		RecordURL: srv.URL + "/records/{category}/{id}",
	})
	require.NoError(t, err)
	report, err := service.NewImporter(store, nopLogger{}, 2).Import(context.Background(), "reviews", "review", d)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stored)
	assert.Equal(t, 1, report.Failed)

	inputs, err := store.ListInputs(taskID, models.PendingInputStatus)
	require.NoError(t, err)
	assert.Len(t, inputs, 2)
}

func TestNewHTTPDownloader_RequiresListURL(t *testing.T) {
	_, err := source.NewHTTPDownloader(source.HTTPConfig{})
	assert.Error(t, err)
}
