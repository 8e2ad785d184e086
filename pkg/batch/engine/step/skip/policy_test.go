package skip_test

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestFailFastNeverSkips(t *testing.T) {
	p := skip.FailFast()
	assert.Equal(t, 0, p.SkipLimit())
	assert.False(t, p.ShouldSkip(exception.NewSourceError("reader", "bad row", nil), 0))
}

func TestSkipLimitIsEnforced(t *testing.T) {
	p, err := skip.NewDefaultSkipPolicyFactory().Create(1, nil)
	require.NoError(t, err)

	srcErr := exception.NewSourceError("reader", "bad row", nil)
	assert.True(t, p.ShouldSkip(srcErr, 0), "first error fits under the limit")
	assert.False(t, p.ShouldSkip(srcErr, 1), "limit reached")
	assert.False(t, p.ShouldSkip(nil, 0))
}

func TestFlaggedKindsSkipWhenNoListConfigured(t *testing.T) {
	p, err := skip.NewDefaultSkipPolicyFactory().Create(10, nil)
	require.NoError(t, err)

	assert.True(t, p.ShouldSkip(exception.NewSourceError("reader", "x", nil), 0))
	assert.True(t, p.ShouldSkip(fmt.Errorf("wrapped: %w", exception.NewProcessingError("processor", "x", nil)), 0))
	assert.False(t, p.ShouldSkip(errors.New("plain error"), 0))
}

func TestSinkAndConfigurationErrorsAreNeverSkipped(t *testing.T) {
	p, err := skip.NewDefaultSkipPolicyFactory().Create(10, []string{exception.SinkErrorType, exception.ConfigurationErrorType})
	require.NoError(t, err)

	assert.False(t, p.ShouldSkip(exception.NewSinkError("writer", "x", nil), 0))
	assert.False(t, p.ShouldSkip(exception.NewConfigurationError("config", "x", nil), 0))
}

func TestConfiguredKindsRestrictSkipping(t *testing.T) {
	p, err := skip.NewDefaultSkipPolicyFactory().Create(5, []string{exception.ProcessingErrorType, "*strconv.NumError"})
	require.NoError(t, err)

	_, numErr := strconv.Atoi("x")
	assert.True(t, p.ShouldSkip(exception.NewProcessingError("processor", "x", nil), 0))
	assert.True(t, p.ShouldSkip(exception.NewBatchError("reader", "mapping", numErr, false, false), 0))
	assert.False(t, p.ShouldSkip(exception.NewSourceError("reader", "unreadable", errors.New("io")), 0),
		"SourceError is not in the configured list")
}

func TestNegativeLimitIsConfigurationError(t *testing.T) {
	_, err := skip.NewDefaultSkipPolicyFactory().Create(-1, nil)
	assert.True(t, exception.IsConfigurationError(err))
}
