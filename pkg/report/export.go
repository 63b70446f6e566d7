package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ignatij/goclassify/pkg/models"
)

// DefaultInputColumns are the input columns exported when none are requested.
var DefaultInputColumns = []string{"id", "external_id", "category", "created_at"}

// WriteCSV writes one header row and one row per response. Each row starts with
// the requested input columns, which are either input attributes (id,
// external_id, category, created_at, status) or input field names, followed by
// every response field of def in declaration order. It returns the number of
// data rows written.
func WriteCSV(w io.Writer, def models.TaskDefinition, rows []models.ResponseRow, inputColumns []string) (int, error) {
	if inputColumns == nil {
		inputColumns = DefaultInputColumns
	}
	for _, col := range inputColumns {
		if !isInputAttribute(col) {
			if _, ok := def.InputSchema.Field(col); !ok {
				return 0, fmt.Errorf("%w: unknown input column %q", ErrInvalidQuery, col)
			}
		}
	}

	cw := csv.NewWriter(w)
	header := append(append([]string(nil), inputColumns...), def.ResponseSchema.Names()...)
	if err := cw.Write(header); err != nil {
		return 0, err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range inputColumns {
			record[i] = inputCell(row.Input, col)
		}
		for i, name := range def.ResponseSchema.Names() {
			record[len(inputColumns)+i] = cell(row.Response.Fields[name])
		}
		if err := cw.Write(record); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(rows), cw.Error()
}

func isInputAttribute(col string) bool {
	switch col {
	case "id", "external_id", "category", "created_at", "status":
		return true
	}
	return false
}

func inputCell(in models.ClassificationInput, col string) string {
	switch col {
	case "id":
		return strconv.FormatInt(in.ID, 10)
	case "external_id":
		return in.ExternalID
	case "category":
		return in.Category
	case "created_at":
		return in.CreatedAt.UTC().Format(time.RFC3339)
	case "status":
		return string(in.Status)
	}
	return cell(in.Fields[col])
}

// cell formats a payload value; missing optional fields are empty.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
