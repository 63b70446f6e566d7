package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ignatij/goclassify/internal/metrics"
	"github.com/ignatij/goclassify/pkg/llm"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/parser"
	"github.com/ignatij/goclassify/pkg/prompt"
	"github.com/ignatij/goclassify/pkg/schema"
	"github.com/ignatij/goclassify/pkg/storage"
)

// ClassificationService runs the classification pipeline over the pending
// inputs of a task: prompt, remote call, parse, validate, persist.
type ClassificationService struct {
	store   storage.Store
	client  *llm.Client
	inputs  *InputService
	logger  Logger
	metrics *metrics.Metrics
}

// ClassificationOption configures a ClassificationService.
type ClassificationOption func(*ClassificationService)

// WithMetrics reports item and run outcomes to m.
func WithMetrics(m *metrics.Metrics) ClassificationOption {
	return func(s *ClassificationService) {
		s.metrics = m
	}
}

func NewClassificationService(store storage.Store, client *llm.Client, logger Logger, opts ...ClassificationOption) *ClassificationService {
	s := &ClassificationService{
		store:  store,
		client: client,
		inputs: NewInputService(store, logger),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes every pending input of the named task.
func (s *ClassificationService) Run(ctx context.Context, taskName string) (models.RunOutcome, error) {
	def, err := s.store.GetTaskDefinition(taskName)
	if errors.Is(err, storage.ErrNotFound) {
		return models.RunOutcome{}, configError(err, "unknown task %q", taskName)
	}
	if err != nil {
		return models.RunOutcome{}, configError(err, "load task %q", taskName)
	}
	pending, err := s.store.ListInputs(def.ID, models.PendingInputStatus)
	if err != nil {
		return models.RunOutcome{}, configError(err, "list pending inputs of task %q", taskName)
	}
	return s.RunInputs(ctx, def, pending)
}

// RunInputs processes inputs of def. Inputs that are no longer pending when a
// worker reaches them are skipped, so a rerun never touches succeeded inputs.
// The returned error is non-nil only for problems with def itself; item
// failures are reported in the outcome.
func (s *ClassificationService) RunInputs(ctx context.Context, def models.TaskDefinition, inputs []models.ClassificationInput) (models.RunOutcome, error) {
	if err := checkTaskDefinition(def); err != nil {
		s.logger.Errorf("Task '%s' cannot run: %v", def.Name, err)
		return models.RunOutcome{}, err
	}

	outcome := models.RunOutcome{
		RunID:     uuid.NewString(),
		TaskName:  def.Name,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Infof("Run %s of task '%s' started with %d inputs (concurrency %d)", outcome.RunID, def.Name, len(inputs), s.client.Concurrency())

	pool := NewWorkerPool(s.client.Concurrency(), func(ctx context.Context, in models.ClassificationInput) models.ItemOutcome {
		return s.processInput(ctx, def, in)
	}, s.logger)
	items := pool.ExecuteInputs(ctx, inputs)
	sort.Slice(items, func(i, j int) bool { return items[i].InputID < items[j].InputID })
	for _, item := range items {
		outcome.Add(item)
		s.metrics.ObserveItem(string(item.Kind), string(item.ErrorKind))
	}
	outcome.FinishedAt = time.Now().UTC()
	s.metrics.ObserveRun()

	s.logger.Infof("Run %s of task '%s' finished in %s: %s", outcome.RunID, def.Name, outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond), outcome.Summary())
	return outcome, nil
}

// checkTaskDefinition rejects definitions no input of which could succeed.
func checkTaskDefinition(def models.TaskDefinition) error {
	if err := schema.CheckDefinition(def.InputSchema); err != nil {
		return configError(err, "task %q input schema", def.Name)
	}
	if len(def.ResponseSchema) == 0 {
		return configError(errors.New("no response fields declared"), "task %q response schema", def.Name)
	}
	if err := schema.CheckDefinition(def.ResponseSchema); err != nil {
		return configError(err, "task %q response schema", def.Name)
	}
	if _, err := prompt.CheckTemplate(def.PromptTemplate, def.InputSchema); err != nil {
		return configError(err, "task %q prompt template", def.Name)
	}
	return nil
}

// processInput runs the stages of one input strictly in order. Every failure is
// recorded on the input; none of them escapes to the other workers.
func (s *ClassificationService) processInput(ctx context.Context, def models.TaskDefinition, in models.ClassificationInput) models.ItemOutcome {
	start := time.Now()
	item := models.ItemOutcome{InputID: in.ID}

	claimed, err := s.inputs.Claim(in.ID)
	if err != nil {
		// The input was never moved, so there is nothing to record on it.
		item.Kind, item.ErrorKind, item.Message = models.FailedOutcome, models.StorageErrorKind, err.Error()
		return item
	}
	if !claimed {
		return skipped(in.ID, skipNotPending)
	}

	fail := func(kind models.ErrorKind, err error) models.ItemOutcome {
		item.Kind, item.ErrorKind, item.Message = models.FailedOutcome, kind, err.Error()
		item.Duration = time.Since(start)
		s.logger.Warnf("Input %d of task '%s' failed (%s): %v", in.ID, def.Name, kind, err)
		if markErr := s.inputs.Fail(in.ID, item.Attempts, kind, item.Message); markErr != nil {
			item.Message = fmt.Sprintf("%s (recording failure: %v)", item.Message, markErr)
		}
		return item
	}

	fields, err := schema.Validate(def.InputSchema, in.Fields)
	if err != nil {
		return fail(models.ValidationErrorKind, fmt.Errorf("input: %w", err))
	}
	text, err := prompt.Build(def.PromptTemplate, fields)
	if err != nil {
		return fail(models.TemplateErrorKind, err)
	}

	res, err := s.client.Classify(ctx, llm.Request{Prompt: text, ResponseSchema: def.ResponseSchema})
	item.Attempts = res.Attempts
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Interrupted while waiting for a slot or a backoff: give it back.
			item.Duration = time.Since(start)
			if relErr := s.inputs.Release(in.ID); relErr != nil {
				return fail(models.StorageErrorKind, relErr)
			}
			out := skipped(in.ID, skipCancelled)
			out.Attempts, out.Duration = item.Attempts, item.Duration
			return out
		}
		if llm.IsRetriesExhausted(err) {
			return fail(models.RetriesExhaustedErrorKind, err)
		}
		return fail(models.ClientFatalErrorKind, err)
	}

	obj, err := parser.Parse(res.Text)
	if err != nil {
		return fail(models.ParseErrorKind, err)
	}
	answer, err := schema.Validate(def.ResponseSchema, obj)
	if err != nil {
		return fail(models.ValidationErrorKind, fmt.Errorf("response: %w", err))
	}
	if err := s.inputs.Complete(in.ID, answer, res.Model, res.Attempts); err != nil {
		return fail(models.StorageErrorKind, err)
	}

	item.Kind = models.SucceededOutcome
	item.Duration = time.Since(start)
	return item
}
