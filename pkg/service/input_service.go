package service

import (
	"time"

	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/pkg/errors"
)

// InputService performs the status transitions of classification inputs.
type InputService struct {
	store  storage.Store
	logger Logger
}

func NewInputService(store storage.Store, logger Logger) *InputService {
	return &InputService{
		store:  store,
		logger: logger,
	}
}

// Claim moves a pending input to in_progress. It reports false when another
// worker or an earlier run got there first.
func (is *InputService) Claim(id int64) (bool, error) {
	ok, err := is.store.ClaimInput(id)
	if err != nil {
		is.logger.Errorf("Failed to claim input %d: %v", id, err)
		return false, errors.Wrapf(err, "claim input %d", id)
	}
	return ok, nil
}

// Complete records the validated response of a claimed input and marks it
// succeeded. Both writes commit together or not at all.
func (is *InputService) Complete(inputID int64, fields models.Payload, model string, attempts int) (err error) {
	txStore, err := is.store.Begin()
	if err != nil {
		is.logger.Errorf("Failed to begin transaction for Complete: %v", err)
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				is.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
		} else {
			if commitErr := txStore.Commit(); commitErr != nil {
				is.logger.Errorf("Failed to commit: %v", commitErr)
				err = commitErr
			}
		}
	}()

	resp := models.ClassificationResponse{
		InputID:   inputID,
		Fields:    fields,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
	if _, err = txStore.SaveResponse(resp); err != nil {
		is.logger.Errorf("Failed to save response for input %d: %v", inputID, err)
		return errors.Wrapf(err, "save response for input %d", inputID)
	}
	if err = txStore.MarkSucceeded(inputID, attempts); err != nil {
		is.logger.Errorf("Failed to mark input %d succeeded: %v", inputID, err)
		return errors.Wrapf(err, "mark input %d succeeded", inputID)
	}
	return nil
}

// Fail marks a claimed input failed and records why.
func (is *InputService) Fail(inputID int64, attempts int, kind models.ErrorKind, msg string) error {
	if err := is.store.MarkFailed(inputID, attempts, kind, msg); err != nil {
		is.logger.Errorf("Failed to mark input %d failed: %v", inputID, err)
		return errors.Wrapf(err, "mark input %d failed", inputID)
	}
	return nil
}

// Release returns a claimed input to pending so a later run can pick it up.
func (is *InputService) Release(inputID int64) error {
	if err := is.store.ReleaseInput(inputID); err != nil {
		is.logger.Errorf("Failed to release input %d: %v", inputID, err)
		return errors.Wrapf(err, "release input %d", inputID)
	}
	return nil
}

// ResetFailed moves every failed input of the named task back to pending.
func (is *InputService) ResetFailed(taskName string) (int64, error) {
	def, err := is.store.GetTaskDefinition(taskName)
	if err != nil {
		return 0, errors.Wrapf(err, "get task definition %q", taskName)
	}
	n, err := is.store.ResetFailedInputs(def.ID)
	if err != nil {
		is.logger.Errorf("Failed to reset failed inputs of task %s: %v", taskName, err)
		return 0, errors.Wrapf(err, "reset failed inputs of task %q", taskName)
	}
	is.logger.Infof("Reset %d failed inputs of task '%s' to pending", n, taskName)
	return n, nil
}

// List returns the inputs of the named task. An empty status lists every input.
func (is *InputService) List(taskName string, status models.InputStatus) ([]models.ClassificationInput, error) {
	switch status {
	case "", models.PendingInputStatus, models.InProgressInputStatus,
		models.SucceededInputStatus, models.FailedInputStatus:
	default:
		return nil, errors.Wrapf(ErrInvalidStatus, "%q; must be 'pending', 'in_progress', 'succeeded' or 'failed'", status)
	}
	def, err := is.store.GetTaskDefinition(taskName)
	if err != nil {
		return nil, errors.Wrapf(err, "get task definition %q", taskName)
	}
	return is.store.ListInputs(def.ID, status)
}

// Counts returns the number of inputs of the named task per status.
func (is *InputService) Counts(taskName string) (map[models.InputStatus]int, error) {
	def, err := is.store.GetTaskDefinition(taskName)
	if err != nil {
		return nil, errors.Wrapf(err, "get task definition %q", taskName)
	}
	return is.store.CountInputs(def.ID)
}
