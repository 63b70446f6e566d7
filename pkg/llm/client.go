// Package llm provides a rate-limited, retrying client for JSON-producing
// classification endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ignatij/goclassify/internal/metrics"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Request is a single classification call.
type Request struct {
	// Prompt is the rendered prompt text.
	Prompt string

	// ResponseSchema describes the expected JSON answer. Providers that support a
	// JSON-mode response schema forward it; the caller validates regardless.
	ResponseSchema models.Schema
}

// Completion is the raw answer of one successful remote call.
type Completion struct {
	Text  string
	Model string
}

// Completer performs one remote call. Implementations must honor ctx and should
// classify their errors with NewTransientError / NewFatalError.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Result is the outcome of Classify.
type Result struct {
	Text     string
	Model    string
	Attempts int
}

// Client bounds the number of in-flight remote calls process-wide and retries
// transient failures with exponential backoff.
type Client struct {
	completer   Completer
	limiter     *semaphore.Weighted
	concurrency int
	retry       RetryConfig
	logger      logrus.FieldLogger
	metrics     *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithMetrics sets the collectors attempts are reported to.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(client *Client) {
		client.metrics = m
	}
}

// NewClient creates a client allowing at most concurrency simultaneous remote
// calls. Values below 1 are treated as 1, and unset retry settings fall back to
// DefaultRetryConfig.
func NewClient(completer Completer, concurrency int, opts ...ClientOption) *Client {
	if concurrency < 1 {
		concurrency = 1
	}
	c := &Client{
		completer:   completer,
		limiter:     semaphore.NewWeighted(int64(concurrency)),
		concurrency: concurrency,
		retry:       DefaultRetryConfig(),
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry = c.retry.withDefaults()
	return c
}

// Concurrency returns the concurrency budget shared by every caller of this client.
func (c *Client) Concurrency() int {
	return c.concurrency
}

// Classify sends req and returns the raw text of the first successful attempt.
//
// Cancelling ctx stops waiting for a slot or a backoff, but an attempt that is
// already talking to the remote service runs to completion, bounded only by the
// per-attempt timeout. Backoff waits do not hold a concurrency slot.
func (c *Client) Classify(ctx context.Context, req Request) (Result, error) {
	var res Result
	var lastErr error

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if err := c.limiter.Acquire(ctx, 1); err != nil {
			return backoff.Permanent(err)
		}
		res.Attempts++
		completion, err := c.attempt(ctx, req)
		c.limiter.Release(1)
		if err == nil {
			res.Text = completion.Text
			res.Model = completion.Model
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"attempt":      res.Attempts,
			"max_attempts": c.retry.MaxAttempts,
			"backoff":      wait,
		}).Debugf("Classification attempt failed, retrying: %v", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(c.retry.newBackOff(), ctx), notify)
	switch {
	case err == nil:
		c.metrics.ObserveCall("success")
		return res, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		c.metrics.ObserveCall("cancelled")
		return res, fmt.Errorf("classification cancelled after %d attempts: %w", res.Attempts, err)
	case !retryable(err):
		c.metrics.ObserveCall("fatal")
		if !IsFatal(err) {
			err = NewFatalError(err)
		}
		return res, err
	default:
		c.metrics.ObserveCall("exhausted")
		return res, &RetriesExhaustedError{Attempts: res.Attempts, LastErr: lastErr}
	}
}

// attempt performs one remote call. The caller holds a concurrency slot.
func (c *Client) attempt(ctx context.Context, req Request) (Completion, error) {
	c.metrics.SlotAcquired()
	defer c.metrics.SlotReleased()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.attemptTimeout())
	defer cancel()

	start := time.Now()
	completion, err := c.completer.Complete(callCtx, req)
	elapsed := time.Since(start)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !IsFatal(err) {
		err = NewTransientError(fmt.Errorf("attempt timed out after %s: %w", c.attemptTimeout(), err))
	}

	switch {
	case err == nil:
		c.metrics.ObserveAttempt("success", elapsed)
	case retryable(err):
		c.metrics.ObserveAttempt("transient", elapsed)
	default:
		c.metrics.ObserveAttempt("fatal", elapsed)
	}
	return completion, err
}

func (c *Client) attemptTimeout() time.Duration {
	return c.retry.AttemptTimeout
}
