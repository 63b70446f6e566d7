package http_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	internal_http "github.com/ignatij/goclassify/internal/http"
	"github.com/ignatij/goclassify/internal/log"
	"github.com/ignatij/goclassify/internal/metrics"
	"github.com/ignatij/goclassify/pkg/llm"
	"github.com/ignatij/goclassify/pkg/llm/llmtest"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/report"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

type testEnv struct {
	srv   *httptest.Server
	store storage.Store
	fake  *llmtest.Fake
}

// newTestEnv serves a "reviews" task with three pending inputs. The fake model
// scores each review with the digit found in its text.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	_, err := service.NewDefinitionService(store, log.GetLogger()).Create(models.TaskDefinition{
		Name:           "reviews",
		PromptTemplate: "Score {text}",
		InputSchema:    models.Schema{{Name: "text", Type: models.StringFieldType, Required: true}},
		ResponseSchema: models.Schema{
			{Name: "label", Type: models.StringFieldType, Required: true},
			{Name: "score", Type: models.IntegerFieldType, Min: ptr(1), Max: ptr(5)},
		},
	})
	require.NoError(t, err)
	importer := service.NewImporter(store, log.GetLogger(), 0)
	_, err = importer.Import(t.Context(), "reviews", "review", bulk{
		{ExternalID: "a", Fields: map[string]any{"text": "review 2"}},
		{ExternalID: "b", Fields: map[string]any{"text": "review 4"}},
		{ExternalID: "c", Fields: map[string]any{"text": "review x"}},
	})
	require.NoError(t, err)

	fake := &llmtest.Fake{Handler: func(req llm.Request, _ int) (string, error) {
		last := req.Prompt[len(req.Prompt)-1:]
		if last == "x" {
			return "I cannot score this", nil
		}
		return `{"label":"ok","score":` + last + `}`, nil
	}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := llm.NewClient(fake, 2, llm.WithMetrics(m))
	classifier := service.NewClassificationService(store, client, log.GetLogger(), service.WithMetrics(m))

	srv := httptest.NewServer(internal_http.NewServer(store, classifier, reg).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, fake: fake}
}

type bulk []service.Record

func (bulk) Name() string { return "test" }

func (b bulk) Records(ctx context.Context, category string) ([]service.Record, error) {
	return b, nil
}

func (e *testEnv) do(t *testing.T, method, path string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestServer(t *testing.T) {
	t.Run("HealthCheck", func(t *testing.T) {
		env := newTestEnv(t)
		status, body := env.do(t, http.MethodGet, "/health")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "GoClassify server is running", string(body))
	})

	t.Run("ListTasks", func(t *testing.T) {
		env := newTestEnv(t)
		status, body := env.do(t, http.MethodGet, "/tasks")
		require.Equal(t, http.StatusOK, status)
		var defs []models.TaskDefinition
		require.NoError(t, json.Unmarshal(body, &defs))
		require.Len(t, defs, 1)
		assert.Equal(t, "reviews", defs[0].Name)
		assert.Equal(t, []string{"label", "score"}, defs[0].ResponseSchema.Names())
	})

	t.Run("GetTask", func(t *testing.T) {
		env := newTestEnv(t)
		status, body := env.do(t, http.MethodGet, "/tasks/reviews")
		require.Equal(t, http.StatusOK, status)
		var view struct {
			Name   string         `json:"name"`
			Inputs map[string]int `json:"inputs"`
		}
		require.NoError(t, json.Unmarshal(body, &view))
		assert.Equal(t, "reviews", view.Name)
		assert.Equal(t, 3, view.Inputs["pending"])

		status, _ = env.do(t, http.MethodGet, "/tasks/unknown")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("RunResetAndInputs", func(t *testing.T) {
		env := newTestEnv(t)
		status, body := env.do(t, http.MethodPost, "/tasks/reviews/run")
		require.Equal(t, http.StatusOK, status, string(body))
		var outcome models.RunOutcome
		require.NoError(t, json.Unmarshal(body, &outcome))
		assert.Equal(t, 2, outcome.Succeeded)
		assert.Equal(t, 1, outcome.FailedByKind[models.ParseErrorKind])

		status, body = env.do(t, http.MethodGet, "/tasks/reviews/inputs?status=failed")
		require.Equal(t, http.StatusOK, status)
		var failed []models.ClassificationInput
		require.NoError(t, json.Unmarshal(body, &failed))
		require.Len(t, failed, 1)
		assert.Equal(t, "c", failed[0].ExternalID)
		assert.Equal(t, models.ParseErrorKind, failed[0].ErrorKind)

		status, _ = env.do(t, http.MethodGet, "/tasks/reviews/inputs?status=done")
		assert.Equal(t, http.StatusBadRequest, status)

		status, body = env.do(t, http.MethodPost, "/tasks/reviews/reset")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"reset":1}`, string(body))

		status, body = env.do(t, http.MethodGet, "/tasks/reviews/inputs?status=pending")
		require.Equal(t, http.StatusOK, status)
		var pending []models.ClassificationInput
		require.NoError(t, json.Unmarshal(body, &pending))
		assert.Len(t, pending, 1)

		status, _ = env.do(t, http.MethodPost, "/tasks/unknown/run")
		assert.Equal(t, http.StatusNotFound, status, "unknown task")

		_, err := env.store.SaveTaskDefinition(models.TaskDefinition{
			Name:           "broken",
			PromptTemplate: "Score {missing}",
			InputSchema:    models.Schema{{Name: "text", Type: models.StringFieldType, Required: true}},
			ResponseSchema: models.Schema{{Name: "label", Type: models.StringFieldType, Required: true}},
		})
		require.NoError(t, err)
		status, _ = env.do(t, http.MethodPost, "/tasks/broken/run")
		assert.Equal(t, http.StatusUnprocessableEntity, status, "misconfigured task")
		status, _ = env.do(t, http.MethodGet, "/tasks/reviews/run")
		assert.Equal(t, http.StatusMethodNotAllowed, status)
	})

	t.Run("StatsAndExport", func(t *testing.T) {
		env := newTestEnv(t)
		status, _ := env.do(t, http.MethodGet, "/tasks/reviews/stats?field=score")
		assert.Equal(t, http.StatusNotFound, status, "nothing classified yet")

		status, _ = env.do(t, http.MethodPost, "/tasks/reviews/run")
		require.Equal(t, http.StatusOK, status)

		status, body := env.do(t, http.MethodGet, "/tasks/reviews/stats?field=score&breakpoints=2")
		require.Equal(t, http.StatusOK, status, string(body))
		var st report.Stats
		require.NoError(t, json.Unmarshal(body, &st))
		assert.Equal(t, 2, st.Count)
		assert.InDelta(t, 3.0, st.Mean, 1e-9)
		assert.Len(t, st.Percentiles, 3)

		for _, bad := range []string{"", "?field=label", "?field=score&breakpoints=zero", "?field=score&since=yesterday"} {
			status, _ = env.do(t, http.MethodGet, "/tasks/reviews/stats"+bad)
			assert.Equal(t, http.StatusBadRequest, status, bad)
		}

		status, body = env.do(t, http.MethodGet, "/tasks/reviews/export?columns=external_id,text&where=score%3E3")
		require.Equal(t, http.StatusOK, status, string(body))
		records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			{"external_id", "text", "label", "score"},
			{"b", "review 4", "ok", "4"},
		}, records)

		status, _ = env.do(t, http.MethodGet, "/tasks/reviews/export?where=score")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Metrics", func(t *testing.T) {
		env := newTestEnv(t)
		status, _ := env.do(t, http.MethodPost, "/tasks/reviews/run")
		require.Equal(t, http.StatusOK, status)

		status, body := env.do(t, http.MethodGet, "/metrics")
		require.Equal(t, http.StatusOK, status)
		text := string(body)
		assert.Contains(t, text, `goclassify_items_total{error_kind="",outcome="succeeded"} 2`)
		assert.Contains(t, text, `goclassify_llm_calls_total{result="success"} 3`)
		assert.True(t, strings.Contains(text, "goclassify_runs_total 1"))
	})

	t.Run("RunWithoutClassifier", func(t *testing.T) {
		srv := httptest.NewServer(internal_http.NewServer(storage.NewMemoryStore(), nil, nil).Handler())
		defer srv.Close()
		resp, err := srv.Client().Post(srv.URL+"/tasks/reviews/run", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		resp, err = srv.Client().Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
