package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorKind classifies why an input failed.
type ErrorKind string

const (
	NoErrorKind               ErrorKind = ""
	ValidationErrorKind       ErrorKind = "validation"
	TemplateErrorKind         ErrorKind = "template"
	ParseErrorKind            ErrorKind = "parse"
	ClientFatalErrorKind      ErrorKind = "client_fatal"
	RetriesExhaustedErrorKind ErrorKind = "retries_exhausted"
	StorageErrorKind          ErrorKind = "storage"
)

type OutcomeKind string

const (
	SucceededOutcome OutcomeKind = "succeeded"
	SkippedOutcome   OutcomeKind = "skipped"
	FailedOutcome    OutcomeKind = "failed"
)

// ItemOutcome is the result of processing a single input during a run.
type ItemOutcome struct {
	InputID   int64         `json:"input_id"`
	Kind      OutcomeKind   `json:"kind"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Message   string        `json:"message,omitempty"` // failure message or skip reason
	Attempts  int           `json:"attempts"`          // remote call attempts made for this item
	Duration  time.Duration `json:"duration"`
}

// RunOutcome aggregates the item outcomes of one orchestrator run. It is not persisted.
type RunOutcome struct {
	RunID        string            `json:"run_id"`
	TaskName     string            `json:"task_name"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Skipped      int               `json:"skipped"`
	FailedByKind map[ErrorKind]int `json:"failed_by_kind"`
	Items        []ItemOutcome     `json:"items"`
}

// Add records an item outcome and updates the counters.
func (o *RunOutcome) Add(item ItemOutcome) {
	if o.FailedByKind == nil {
		o.FailedByKind = make(map[ErrorKind]int)
	}
	switch item.Kind {
	case SucceededOutcome:
		o.Succeeded++
	case SkippedOutcome:
		o.Skipped++
	case FailedOutcome:
		o.Failed++
		o.FailedByKind[item.ErrorKind]++
	}
	o.Items = append(o.Items, item)
}

// Total is the number of items the run saw.
func (o RunOutcome) Total() int {
	return o.Succeeded + o.Failed + o.Skipped
}

// Item returns the outcome recorded for inputID.
func (o RunOutcome) Item(inputID int64) (ItemOutcome, bool) {
	for _, it := range o.Items {
		if it.InputID == inputID {
			return it, true
		}
	}
	return ItemOutcome{}, false
}

// Summary renders the counters on one line, failure kinds sorted by name.
func (o RunOutcome) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "succeeded=%d failed=%d skipped=%d", o.Succeeded, o.Failed, o.Skipped)
	kinds := make([]string, 0, len(o.FailedByKind))
	for k := range o.FailedByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, " %s=%d", k, o.FailedByKind[ErrorKind(k)])
	}
	return b.String()
}
