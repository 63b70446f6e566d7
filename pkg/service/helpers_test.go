package service_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignatij/goclassify/pkg/llm"
	"github.com/ignatij/goclassify/pkg/llm/llmtest"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testLogger implements Logger interface for testing and keeps the warnings.
type testLogger struct {
	mu       sync.Mutex
	warnings []string
}

func newLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Infof(format string, args ...interface{}) {
}

func (l *testLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *testLogger) Errorf(format string, args ...interface{}) {
}

func (l *testLogger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warnings...)
}

// NewTestInMemoryStore creates a new in-memory store for testing
func NewTestInMemoryStore() storage.Store {
	return storage.NewMemoryStore()
}

func fastRetry() llm.RetryConfig {
	return llm.RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
		AttemptTimeout:    time.Second,
	}
}

func ptr(v float64) *float64 { return &v }

func reviewTask() models.TaskDefinition {
	return models.TaskDefinition{
		Name:           "reviews",
		PromptTemplate: "Classify the review {text}. Answer with a label and a score.",
		InputSchema: models.Schema{
			{Name: "text", Type: models.StringFieldType, Required: true},
			{Name: "stars", Type: models.IntegerFieldType, Min: ptr(1), Max: ptr(5)},
		},
		ResponseSchema: models.Schema{
			{Name: "label", Type: models.StringFieldType, Required: true, Enum: []any{"ok", "spam"}},
			{Name: "score", Type: models.IntegerFieldType, Min: ptr(1), Max: ptr(5)},
		},
	}
}

type fixture struct {
	store  storage.Store
	logger *testLogger
	fake   *llmtest.Fake
	client *llm.Client
	svc    *service.ClassificationService
	task   models.TaskDefinition
	inputs []int64
}

// newFixture stores the review task with n pending inputs whose text is "item 1" ... "item n".
func newFixture(t *testing.T, concurrency, n int, handler llmtest.Handler) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewTestInMemoryStore(),
		logger: newLogger(),
		fake:   &llmtest.Fake{Handler: handler},
	}
	id, err := service.NewDefinitionService(f.store, f.logger).Create(reviewTask())
	require.NoError(t, err)
	f.task, err = f.store.GetTaskDefinition("reviews")
	require.NoError(t, err)
	require.Equal(t, id, f.task.ID)

	for i := 1; i <= n; i++ {
		inputID, err := f.store.SaveInput(models.ClassificationInput{
			TaskID:     f.task.ID,
			ExternalID: fmt.Sprintf("r-%d", i),
			Fields:     models.Payload{"text": fmt.Sprintf("item %d", i)},
		})
		require.NoError(t, err)
		f.inputs = append(f.inputs, inputID)
	}
	f.client = llm.NewClient(f.fake, concurrency, llm.WithRetryConfig(fastRetry()))
	f.svc = service.NewClassificationService(f.store, f.client, f.logger)
	return f
}

func (f *fixture) input(t *testing.T, id int64) models.ClassificationInput {
	t.Helper()
	in, err := f.store.GetInput(id)
	require.NoError(t, err)
	return in
}

// reply answers every call with text.
func reply(text string) llmtest.Handler {
	return func(llm.Request, int) (string, error) {
		return text, nil
	}
}
