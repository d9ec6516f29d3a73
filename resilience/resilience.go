// Package resilience provides retry, timeout and circuit-breaking helpers
// for calls that leave the process. Retrying is opt-in per error: upstream
// effects may not be idempotent, so only errors explicitly marked with
// Retryable are ever attempted again.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int           // total attempts including the first
	InitialDelay    time.Duration // delay before the second attempt
	MaxDelay        time.Duration // backoff ceiling
	Multiplier      float64       // exponential backoff multiplier
	RandomizeFactor float64       // jitter factor in [0,1]
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
	}
}

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as safe to retry.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retryable. Context
// cancellation is never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *retryableError
	return errors.As(err, &re)
}

// RetryWithConfig executes fn, retrying errors marked Retryable with
// jittered exponential backoff.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if !IsRetryable(err) {
				return err
			}
		}
		if attempt < config.MaxAttempts-1 {
			select {
			case <-time.After(applyJitter(delay, config.RandomizeFactor)):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
	}
	return ErrMaxRetriesExceeded{Attempts: config.MaxAttempts, LastErr: lastErr}
}

// Retry executes fn with the default retry configuration.
func Retry(ctx context.Context, fn func() error) error {
	return RetryWithConfig(ctx, DefaultRetryConfig(), fn)
}

// applyJitter adds randomization to the delay.
func applyJitter(delay time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return delay
	}
	jitter := float64(delay) * factor
	return time.Duration(float64(delay) - jitter + rand.Float64()*2*jitter)
}

// ErrMaxRetriesExceeded is returned when all attempts fail.
type ErrMaxRetriesExceeded struct {
	Attempts int
	LastErr  error
}

func (e ErrMaxRetriesExceeded) Error() string {
	if e.LastErr != nil {
		return "max retries exceeded: " + e.LastErr.Error()
	}
	return "max retries exceeded"
}

func (e ErrMaxRetriesExceeded) Unwrap() error { return e.LastErr }

// WithTimeout runs fn under a deadline. The gateway applies its own bound
// to every connector call rather than trusting upstream response times.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := fn(tctx)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, d)
	}
	return err
}

// ErrTimeout marks a call that exceeded its deadline.
var ErrTimeout = errors.New("call timed out")

// Circuit-breaker errors.
var (
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Breaker is a minimal failure-counting circuit breaker. After maxFailures
// consecutive failures it rejects calls for resetTimeout, then allows a
// single probe.
type Breaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	openedAt     time.Time
	probing      bool
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and probes again after resetTimeout.
func NewBreaker(maxFailures int, resetTimeout time.Duration) *Breaker {
	return &Breaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

// Execute runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.failures >= b.maxFailures {
		// Half-open admits exactly one probe; concurrent callers stay
		// rejected until it reports back.
		if b.probing || time.Since(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err != nil {
		b.failures++
		if b.failures >= b.maxFailures {
			b.openedAt = time.Now()
		}
		return err
	}
	b.failures = 0
	return nil
}
