package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// RetryFunc is a function that can be retried
type RetryFunc func() error

// IsRetryableFunc is a function that determines if an error is retryable
type IsRetryableFunc func(error) bool

// Options configures the retry behavior
type Options struct {
	// MaxRetries is the maximum number of retry attempts (not including the initial attempt)
	MaxRetries int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// BackoffFactor is the factor by which the delay increases after each retry
	BackoffFactor float64

	// JitterFactor adds randomness to the delay (0.0 = no jitter, 1.0 = 100% jitter)
	JitterFactor float64

	// RetryableErrors is a list of errors that are considered retryable
	RetryableErrors []error

	// IsRetryableFunc is a function that determines if an error is retryable
	// If provided, this takes precedence over RetryableErrors
	IsRetryableFunc IsRetryableFunc

	// Logger is a function that logs retry attempts
	Logger func(format string, args ...interface{})
}

// DefaultOptions returns default retry options for transient socket errors
func DefaultOptions() Options {
	return Options{
		MaxRetries:      5,
		InitialDelay:    5 * time.Millisecond,
		MaxDelay:        time.Second,
		BackoffFactor:   2.0,
		JitterFactor:    0.1,
		IsRetryableFunc: IsTransient,
	}
}

// Do executes fn until it succeeds, fails with a non-retryable error, runs out of
// attempts or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, fn RetryFunc, opts Options) error {
	var err error
	var delay time.Duration

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	if opts.Logger == nil {
		opts.Logger = func(format string, args ...interface{}) {}
	}

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			if attempt > 0 {
				opts.Logger("Retry successful on attempt %d", attempt+1)
			}
			return nil
		}

		if !isRetryable(err, opts) {
			return err
		}

		if attempt == opts.MaxRetries {
			opts.Logger("Max retries exceeded (%d attempts): %v", attempt+1, err)
			return err
		}

		if attempt == 0 {
			delay = opts.InitialDelay
		} else {
			delay = time.Duration(float64(delay) * opts.BackoffFactor)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}

		wait := delay
		if opts.JitterFactor > 0 {
			jitter := float64(delay) * opts.JitterFactor
			wait = time.Duration(float64(delay) + (rnd.Float64()*jitter*2 - jitter))
		}

		opts.Logger("Retry attempt %d after %v: %v", attempt+1, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}

	// This should never be reached due to the return in the loop
	return errors.New("unexpected error in retry logic")
}

// IsRetryable checks if an error is retryable based on the provided retryable errors
func IsRetryable(err error, retryableErrors []error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()
	for _, retryableErr := range retryableErrors {
		if errors.Is(err, retryableErr) || strings.Contains(errMsg, retryableErr.Error()) {
			return true
		}
	}

	return false
}

// isRetryable checks if an error is retryable based on the options
func isRetryable(err error, opts Options) bool {
	if opts.IsRetryableFunc != nil {
		return opts.IsRetryableFunc(err)
	}
	return IsRetryable(err, opts.RetryableErrors)
}
