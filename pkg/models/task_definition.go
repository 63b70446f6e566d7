package models

import "time"

// TaskDefinition is a named classification workflow: what an input looks like,
// what the model must answer with, and the prompt that connects the two.
type TaskDefinition struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description,omitempty" db:"description"`
	PromptTemplate string    `json:"prompt_template" db:"prompt_template"`
	InputSchema    Schema    `json:"input_fields" db:"-"`
	ResponseSchema Schema    `json:"response_fields" db:"-"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
