// Package llmtest provides a scriptable, instrumented Completer for tests.
package llmtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignatij/goclassify/pkg/llm"
)

// Handler produces the answer for the call-th invocation (1-based) of a Fake.
type Handler func(req llm.Request, call int) (string, error)

// Interval is the wall-clock span of one call.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Fake is a thread-safe Completer. It records every request and the time span of
// every call so tests can assert on attempt counts and overlap.
//
//	fake := &llmtest.Fake{Handler: func(req llm.Request, call int) (string, error) {
//	    if call < 3 {
//	        return "", llm.NewTransientError(errors.New("429"))
//	    }
//	    return `{"sentiment": 4}`, nil
//	}}
type Fake struct {
	// Delay simulates latency; it is cut short if ctx is done.
	Delay   time.Duration
	Handler Handler
	Model   string

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	requests    []llm.Request
	intervals   []Interval
}

// Complete implements llm.Completer.
func (f *Fake) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.requests = append(f.requests, req)
	start := time.Now()
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.intervals = append(f.intervals, Interval{Start: start, End: time.Now()})
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return llm.Completion{}, ctx.Err()
		}
	}

	model := f.Model
	if model == "" {
		model = "fake-model"
	}
	if f.Handler == nil {
		return llm.Completion{Text: "{}", Model: model}, nil
	}
	text, err := f.Handler(req, call)
	if err != nil {
		return llm.Completion{}, err
	}
	return llm.Completion{Text: text, Model: model}, nil
}

// Calls returns the number of Complete invocations.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// MaxInFlight returns the highest number of simultaneous calls observed.
func (f *Fake) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// Requests returns a copy of every request received.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// Intervals returns the recorded call spans.
func (f *Fake) Intervals() []Interval {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Interval(nil), f.intervals...)
}

// MaxOverlap computes the largest number of recorded intervals that were open at
// the same instant. An interval ending exactly when another starts does not overlap it.
func MaxOverlap(intervals []Interval) int {
	type event struct {
		at    time.Time
		delta int
	}
	events := make([]event, 0, 2*len(intervals))
	for _, iv := range intervals {
		events = append(events, event{iv.Start, 1}, event{iv.End, -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta < events[j].delta
		}
		return events[i].at.Before(events[j].at)
	})
	open, maxOpen := 0, 0
	for _, e := range events {
		open += e.delta
		if open > maxOpen {
			maxOpen = open
		}
	}
	return maxOpen
}
