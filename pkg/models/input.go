package models

import "time"

type InputStatus string

const (
	PendingInputStatus    InputStatus = "pending"
	InProgressInputStatus InputStatus = "in_progress"
	SucceededInputStatus  InputStatus = "succeeded"
	FailedInputStatus     InputStatus = "failed"
)

// ClassificationInput is one unit of work for a task definition.
type ClassificationInput struct {
	ID         int64       `json:"id" db:"id"`
	TaskID     int64       `json:"task_id" db:"task_id"`
	ExternalID string      `json:"external_id,omitempty" db:"external_id"` // identifier in the source system
	Category   string      `json:"category,omitempty" db:"category"`       // input type the record was imported under
	Fields     Payload     `json:"fields" db:"fields"`
	Status     InputStatus `json:"status" db:"status"`
	Attempts   int         `json:"attempts" db:"attempts"` // remote call attempts made by the last run
	ErrorKind  ErrorKind   `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMsg   string      `json:"error,omitempty" db:"error_msg"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// ClassificationResponse is the validated model output for exactly one input.
type ClassificationResponse struct {
	ID        int64     `json:"id" db:"id"`
	InputID   int64     `json:"input_id" db:"input_id"`
	Fields    Payload   `json:"fields" db:"fields"`
	Model     string    `json:"model,omitempty" db:"model"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ResponseRow is a response joined with the input it answers.
type ResponseRow struct {
	Input    ClassificationInput
	Response ClassificationResponse
}
