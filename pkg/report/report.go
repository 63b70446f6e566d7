package report

import (
	"io"
	"time"

	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/pkg/errors"
)

// Reporter reads the stored responses of a task.
type Reporter struct {
	store storage.Store
}

func NewReporter(store storage.Store) *Reporter {
	return &Reporter{store: store}
}

// Summarize computes statistics over a numeric response field of the named
// task, counting responses created at or after since (zero means all).
func (r *Reporter) Summarize(taskName, field string, since time.Time, breakpoints int) (Stats, error) {
	def, err := r.store.GetTaskDefinition(taskName)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "get task definition %q", taskName)
	}
	f, ok := def.ResponseSchema.Field(field)
	if !ok {
		return Stats{}, errors.Wrapf(ErrInvalidQuery, "task %q has no response field %q", taskName, field)
	}
	if f.Type != models.IntegerFieldType && f.Type != models.NumberFieldType {
		return Stats{}, errors.Wrapf(ErrInvalidQuery, "response field %q is %s, not numeric", field, f.Type)
	}

	rows, err := r.store.ListResponses(storage.ResponseFilter{TaskID: def.ID, Since: since})
	if err != nil {
		return Stats{}, errors.Wrapf(err, "list responses of task %q", taskName)
	}
	return Compute(field, Values(rows, field), breakpoints)
}

// Export writes the responses of the named task that pass filter as CSV. The
// filter's TaskID is set from the task.
func (r *Reporter) Export(w io.Writer, taskName string, filter storage.ResponseFilter, inputColumns []string) (int, error) {
	def, err := r.store.GetTaskDefinition(taskName)
	if err != nil {
		return 0, errors.Wrapf(err, "get task definition %q", taskName)
	}
	for _, p := range filter.Predicates {
		if _, ok := def.ResponseSchema.Field(p.Field); !ok {
			return 0, errors.Wrapf(ErrInvalidQuery, "filter %s: task %q has no response field %q", p, taskName, p.Field)
		}
	}
	filter.TaskID = def.ID
	rows, err := r.store.ListResponses(filter)
	if err != nil {
		return 0, errors.Wrapf(err, "list responses of task %q", taskName)
	}
	return WriteCSV(w, def, rows, inputColumns)
}

// Values collects the numeric values of field, skipping rows that lack it.
func Values(rows []models.ResponseRow, field string) []float64 {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		switch n := row.Response.Fields[field].(type) {
		case int:
			values = append(values, float64(n))
		case int64:
			values = append(values, float64(n))
		case float64:
			values = append(values, n)
		}
	}
	return values
}

// ParseSince accepts a date (YYYY-MM-DD) or an RFC 3339 timestamp. The empty
// string yields the zero time.
func ParseSince(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid since %q: use YYYY-MM-DD or RFC 3339", v)
	}
	return t, nil
}
