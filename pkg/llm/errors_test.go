package llm_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ignatij/goclassify/pkg/llm"
	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		code      int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			err := llm.ClassifyHTTPStatus(tt.code, errors.New("boom"))
			assert.Equal(t, tt.transient, llm.IsTransient(err))
			assert.Equal(t, !tt.transient, llm.IsFatal(err))
			assert.EqualError(t, err, "boom")
		})
	}
}

func TestRetriesExhaustedError(t *testing.T) {
	cause := llm.NewTransientError(context.DeadlineExceeded)
	err := &llm.RetriesExhaustedError{Attempts: 3, LastErr: cause}

	assert.EqualError(t, err, "retries exhausted after 3 attempts: context deadline exceeded")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, llm.IsTransient(err))
	assert.True(t, llm.IsRetriesExhausted(err))
	assert.False(t, llm.IsRetriesExhausted(cause))
}
