// Package retry provides bounded retries with backoff for calls to external
// vulnerability sources.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines how to calculate the next retry delay.
type BackoffStrategy int

const (
	// BackoffExponential uses exponential backoff: base * 2^attempt
	BackoffExponential BackoffStrategy = iota

	// BackoffLinear uses linear backoff: base * attempt
	BackoffLinear

	// BackoffConstant uses constant backoff: base (no increase)
	BackoffConstant
)

// BackoffConfig configures the backoff behavior.
type BackoffConfig struct {
	// Strategy is the backoff strategy to use.
	// Default is BackoffExponential.
	Strategy BackoffStrategy

	// BaseInterval is the base interval for backoff calculation.
	// Default is 200ms.
	BaseInterval time.Duration

	// MaxInterval is the maximum interval between retries.
	// Default is 5 seconds.
	MaxInterval time.Duration

	// Jitter adds randomness to prevent thundering herd.
	// Value between 0.0 (no jitter) and 1.0 (full jitter).
	// Default is 0.1 (10% jitter).
	Jitter float64
}

// DefaultBackoffConfig returns a BackoffConfig with default values.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		Strategy:     BackoffExponential,
		BaseInterval: 200 * time.Millisecond,
		MaxInterval:  5 * time.Second,
		Jitter:       0.1,
	}
}

// Interval calculates the backoff interval for the given attempt,
// starting at 1.
func (c *BackoffConfig) Interval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var interval time.Duration

	switch c.Strategy {
	case BackoffLinear:
		interval = c.BaseInterval * time.Duration(attempt)

	case BackoffConstant:
		interval = c.BaseInterval

	default:
		// Exponential: base * 2^(attempt-1)
		multiplier := math.Pow(2, float64(attempt-1))
		interval = time.Duration(float64(c.BaseInterval) * multiplier)
	}

	if c.MaxInterval > 0 && interval > c.MaxInterval {
		interval = c.MaxInterval
	}

	if c.Jitter > 0 {
		interval = c.applyJitter(interval)
	}

	return interval
}

// applyJitter adds randomness to the interval to prevent thundering herd.
func (c *BackoffConfig) applyJitter(interval time.Duration) time.Duration {
	jitter := c.Jitter
	if jitter > 1 {
		jitter = 1
	}

	// Jitter range [1-jitter, 1+jitter]; for jitter=0.1 that is [0.9, 1.1].
	jitterRange := float64(interval) * jitter
	jitterValue := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(interval) + jitterValue)
}
