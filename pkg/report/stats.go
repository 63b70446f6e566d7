// Package report summarizes and exports classification responses.
package report

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultBreakpoints is the number of percentile steps shown by default.
const DefaultBreakpoints = 5

var (
	// ErrNoValues is returned when there is nothing to summarize.
	ErrNoValues = errors.New("no processed inputs found")
	// ErrInvalidQuery marks requests that name unknown or unsuitable fields.
	ErrInvalidQuery = errors.New("invalid query")
)

// Percentile is the value at position floor(P/100 * (n-1)) of the sorted sample.
type Percentile struct {
	P     int     `json:"p"`
	Value float64 `json:"value"`
}

// Stats summarizes one numeric response field.
type Stats struct {
	Field  string  `json:"field"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	// StdDev is the sample standard deviation; nil with fewer than two values.
	StdDev      *float64     `json:"stddev,omitempty"`
	Percentiles []Percentile `json:"percentiles"`
}

// Compute summarizes values. breakpoints splits 0..100 into steps of
// 100/breakpoints (integer division) and must be between 1 and 100.
func Compute(field string, values []float64, breakpoints int) (Stats, error) {
	if breakpoints < 1 || breakpoints > 100 {
		return Stats{}, fmt.Errorf("%w: breakpoints must be between 1 and 100, got %d", ErrInvalidQuery, breakpoints)
	}
	if len(values) == 0 {
		return Stats{}, ErrNoValues
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	st := Stats{Field: field, Count: n, Mean: sum / float64(n)}
	if n%2 == 1 {
		st.Median = sorted[n/2]
	} else {
		st.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	if n > 1 {
		var sq float64
		for _, v := range sorted {
			sq += (v - st.Mean) * (v - st.Mean)
		}
		sd := math.Sqrt(sq / float64(n-1))
		st.StdDev = &sd
	}

	step := 100 / breakpoints
	for p := 0; p <= 100; p += step {
		idx := int(float64(p) / 100 * float64(n-1))
		st.Percentiles = append(st.Percentiles, Percentile{P: p, Value: sorted[idx]})
	}
	return st, nil
}

// String renders the summary and the distribution for a terminal.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary statistics for %s:\n", s.Field)
	fmt.Fprintf(&b, "Total inputs processed: %d\n", s.Count)
	fmt.Fprintf(&b, "Mean: %.2f\n", s.Mean)
	fmt.Fprintf(&b, "Median: %g\n", s.Median)
	if s.StdDev != nil {
		fmt.Fprintf(&b, "Standard deviation: %.2f\n", *s.StdDev)
	} else {
		b.WriteString("Standard deviation: N/A (need more than one value)\n")
	}
	b.WriteString("Distribution:\n")
	for _, p := range s.Percentiles {
		fmt.Fprintf(&b, "%dth percentile: %.2f\n", p.P, p.Value)
	}
	return b.String()
}
