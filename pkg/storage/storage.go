package storage

import (
	"errors"
	"time"

	"github.com/ignatij/goclassify/pkg/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when an input is not in the status an update requires.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// Store defines the storage operations for goclassify.
//
// Status updates are conditional: ClaimInput only moves a pending input, and
// MarkSucceeded, MarkFailed and ReleaseInput only move an in-progress one. This
// is what keeps two workers from ever recording two terminal states for one input.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Task definition operations
	SaveTaskDefinition(def models.TaskDefinition) (int64, error)
	GetTaskDefinition(name string) (models.TaskDefinition, error)
	ListTaskDefinitions() ([]models.TaskDefinition, error)

	// Input operations
	SaveInput(in models.ClassificationInput) (int64, error)
	GetInput(id int64) (models.ClassificationInput, error)
	// ListInputs returns the inputs of a task ordered by ID. An empty status matches every input.
	ListInputs(taskID int64, status models.InputStatus) ([]models.ClassificationInput, error)
	CountInputs(taskID int64) (map[models.InputStatus]int, error)
	DeleteInput(id int64) error

	// Status transitions
	ClaimInput(id int64) (bool, error)
	MarkSucceeded(id int64, attempts int) error
	MarkFailed(id int64, attempts int, kind models.ErrorKind, msg string) error
	ReleaseInput(id int64) error
	ResetFailedInputs(taskID int64) (int64, error)

	// Response operations
	SaveResponse(resp models.ClassificationResponse) (int64, error)
	GetResponse(inputID int64) (models.ClassificationResponse, error)
	ListResponses(filter ResponseFilter) ([]models.ResponseRow, error)
}

// ResponseFilter selects the responses of one task.
type ResponseFilter struct {
	TaskID     int64
	Since      time.Time // zero means no lower bound on the response creation time
	Category   string    // empty matches every category
	Predicates []Predicate
}

// Matches reports whether row passes the filter.
func (f ResponseFilter) Matches(row models.ResponseRow) bool {
	if row.Input.TaskID != f.TaskID {
		return false
	}
	if !f.Since.IsZero() && row.Response.CreatedAt.Before(f.Since) {
		return false
	}
	if f.Category != "" && row.Input.Category != f.Category {
		return false
	}
	for _, p := range f.Predicates {
		if !p.Matches(row.Response.Fields) {
			return false
		}
	}
	return true
}
