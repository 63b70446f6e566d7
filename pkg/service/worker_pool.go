package service

import (
	"context"
	"sync"

	"github.com/ignatij/goclassify/pkg/models"
)

// ItemFunc runs the pipeline of one input and reports its outcome.
type ItemFunc func(ctx context.Context, in models.ClassificationInput) models.ItemOutcome

// WorkerPool fans inputs out to a fixed number of workers. Each input is handed
// to exactly one worker.
type WorkerPool struct {
	workers int
	process ItemFunc
	logger  Logger
}

func NewWorkerPool(workers int, process ItemFunc, logger Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		process: process,
		logger:  logger,
	}
}

// ExecuteInputs processes inputs and returns one outcome per input, in completion
// order. Once ctx is cancelled no further input is handed out; those inputs are
// reported as skipped and left untouched.
func (wp *WorkerPool) ExecuteInputs(ctx context.Context, inputs []models.ClassificationInput) []models.ItemOutcome {
	workers := wp.workers
	if len(inputs) < workers {
		workers = len(inputs)
	}
	inputChan := make(chan models.ClassificationInput)
	outcomeChan := make(chan models.ItemOutcome, len(inputs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wp.worker(ctx, inputChan, outcomeChan)
		}()
	}

	dispatched := 0
dispatch:
	for _, in := range inputs {
		select {
		case inputChan <- in:
			dispatched++
		case <-ctx.Done():
			wp.logger.Infof("Run cancelled, %d of %d inputs not started: %v", len(inputs)-dispatched, len(inputs), ctx.Err())
			break dispatch
		}
	}
	close(inputChan)
	wg.Wait()
	close(outcomeChan)

	outcomes := make([]models.ItemOutcome, 0, len(inputs))
	for outcome := range outcomeChan {
		outcomes = append(outcomes, outcome)
	}
	for _, in := range inputs[dispatched:] {
		outcomes = append(outcomes, skipped(in.ID, skipCancelled))
	}
	return outcomes
}

func (wp *WorkerPool) worker(ctx context.Context, inputs <-chan models.ClassificationInput, outcomes chan<- models.ItemOutcome) {
	for in := range inputs {
		if ctx.Err() != nil {
			// Handed out in the same instant the run was cancelled.
			outcomes <- skipped(in.ID, skipCancelled)
			continue
		}
		outcomes <- wp.process(ctx, in)
	}
}

const (
	skipCancelled  = "cancelled"
	skipNotPending = "not pending"
)

func skipped(inputID int64, reason string) models.ItemOutcome {
	return models.ItemOutcome{InputID: inputID, Kind: models.SkippedOutcome, Message: reason}
}
