package errors

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig is tuned for backend connectivity checks at construction
// time, where a slow failure delays startup.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

/*
Retry executes fn with exponential backoff until it succeeds, the attempts
are exhausted, or ctx is done.
*/
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = config.InitialDelay
	policy.MaxInterval = config.MaxDelay
	policy.Multiplier = config.BackoffFactor
	policy.RandomizationFactor = 0

	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error

	err := backoff.Retry(func() error {
		last = fn()
		return last
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))

	if err != nil {
		if last == nil {
			last = err
		}
		return fmt.Errorf("after %d attempts, last error: %w", attempts, last)
	}

	return nil
}
