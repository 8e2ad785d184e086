// Package retry decides whether a failed processor call is attempted again, and how long to wait.
package retry

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// RetryPolicy governs processor retries. Sources and sinks are never retried.
type RetryPolicy interface {
	// ShouldRetry reports whether err is worth another attempt.
	ShouldRetry(err error) bool
	// MaxAttempts is the total number of attempts including the first. 1 disables retry.
	MaxAttempts() int
	// NewBackOff returns a fresh backoff schedule for one record.
	NewBackOff() backoff.BackOff
}

// DefaultRetryPolicyFactory creates the default RetryPolicy from configuration values.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create builds a policy. initialInterval is in milliseconds; a multiplier <= 1 keeps the
// interval fixed, a larger one grows it exponentially.
func (f *DefaultRetryPolicyFactory) Create(maxAttempts int, initialInterval int, multiplier float64, retryableExceptions []string) (RetryPolicy, error) {
	if maxAttempts < 1 {
		return nil, exception.NewConfigurationErrorf("retry", "max attempts must be >= 1, got %d", maxAttempts)
	}
	if initialInterval < 0 {
		return nil, exception.NewConfigurationErrorf("retry", "initial interval must be >= 0ms, got %d", initialInterval)
	}
	return &defaultRetryPolicy{
		maxAttempts:         maxAttempts,
		interval:            time.Duration(initialInterval) * time.Millisecond,
		multiplier:          multiplier,
		retryableExceptions: append([]string(nil), retryableExceptions...),
	}, nil
}

// NoRetry returns the policy that makes exactly one attempt.
func NoRetry() RetryPolicy {
	return &defaultRetryPolicy{maxAttempts: 1}
}

type defaultRetryPolicy struct {
	maxAttempts         int
	interval            time.Duration
	multiplier          float64
	retryableExceptions []string
}

func (p *defaultRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil || p.maxAttempts <= 1 {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	for _, name := range p.retryableExceptions {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

func (p *defaultRetryPolicy) NewBackOff() backoff.BackOff {
	if p.multiplier <= 1 {
		return backoff.NewConstantBackOff(p.interval)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.interval
	b.Multiplier = p.multiplier
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)
