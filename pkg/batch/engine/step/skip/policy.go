// Package skip decides whether a per-record error is absorbed or escalates to a run failure.
package skip

import (
	"errors"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// SkipPolicy is a pure decision function. It holds no counters: the engine passes the number
// of error skips already absorbed by the current run, so one policy can serve parallel runs.
type SkipPolicy interface {
	// ShouldSkip reports whether err may be absorbed given skipCount earlier error skips.
	// It returns false once skipCount has reached the limit, whatever the error kind.
	ShouldSkip(err error, skipCount int) bool
	// SkipLimit returns the configured maximum number of error skips.
	SkipLimit() int
}

// DefaultSkipPolicyFactory creates the default SkipPolicy from configuration values.
type DefaultSkipPolicyFactory struct{}

// NewDefaultSkipPolicyFactory creates a new DefaultSkipPolicyFactory.
func NewDefaultSkipPolicyFactory() *DefaultSkipPolicyFactory {
	return &DefaultSkipPolicyFactory{}
}

// Create builds a policy. skipLimit 0 is fail-fast. skippableExceptions names error kinds
// (registry names, Go type names, or message fragments); when empty, errors flagged
// skippable by their constructor (SourceError, ProcessingError) are skippable.
func (f *DefaultSkipPolicyFactory) Create(skipLimit int, skippableExceptions []string) (SkipPolicy, error) {
	if skipLimit < 0 {
		return nil, exception.NewConfigurationErrorf("skip", "skip limit must be >= 0, got %d", skipLimit)
	}
	names := make([]string, len(skippableExceptions))
	copy(names, skippableExceptions)
	return &defaultSkipPolicy{skipLimit: skipLimit, skippableExceptions: names}, nil
}

// FailFast returns the policy that never skips.
func FailFast() SkipPolicy {
	return &defaultSkipPolicy{}
}

type defaultSkipPolicy struct {
	skipLimit           int
	skippableExceptions []string
}

func (p *defaultSkipPolicy) ShouldSkip(err error, skipCount int) bool {
	if err == nil || skipCount >= p.skipLimit {
		return false
	}
	// Chunk-level and start-up failures are never per-record.
	if exception.IsSinkError(err) || exception.IsConfigurationError(err) {
		return false
	}

	if len(p.skippableExceptions) > 0 {
		for _, name := range p.skippableExceptions {
			if exception.IsErrorOfType(err, name) {
				return true
			}
		}
		return false
	}

	var be *exception.BatchError
	return errors.As(err, &be) && be.IsSkippable()
}

func (p *defaultSkipPolicy) SkipLimit() int {
	return p.skipLimit
}

var _ SkipPolicy = (*defaultSkipPolicy)(nil)
