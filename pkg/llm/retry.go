package llm

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds retry configuration for remote classification calls.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per call, including the first.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps every backoff wait, jitter included.
	MaxBackoff time.Duration

	// Jitter is the randomization factor applied to each wait (0.25 means +/- 25%).
	Jitter float64

	// AttemptTimeout bounds a single remote call.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns sensible retry defaults for LLM requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       4 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
		Jitter:            0.25,
		AttemptTimeout:    60 * time.Second,
	}
}

// withDefaults replaces unusable values with their DefaultRetryConfig
// counterparts. A zero MaxAttempts or BackoffBase would otherwise retry
// forever without waiting.
func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxBackoff < c.BackoffBase {
		c.MaxBackoff = c.BackoffBase
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = d.Jitter
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	return c
}

// newBackOff builds the wait schedule between attempts.
func (c RetryConfig) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.BackoffBase
	eb.Multiplier = c.BackoffMultiplier
	eb.RandomizationFactor = c.Jitter
	eb.MaxInterval = c.MaxBackoff
	eb.MaxElapsedTime = 0
	eb.Reset()

	return backoff.WithMaxRetries(&cappedBackOff{BackOff: eb, max: c.MaxBackoff}, uint64(c.MaxAttempts-1))
}

// cappedBackOff keeps the randomized interval from exceeding max.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (c *cappedBackOff) NextBackOff() time.Duration {
	next := c.BackOff.NextBackOff()
	if next != backoff.Stop && c.max > 0 && next > c.max {
		return c.max
	}
	return next
}
