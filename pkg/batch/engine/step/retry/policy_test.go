package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestNoRetry(t *testing.T) {
	p := retry.NoRetry()
	assert.Equal(t, 1, p.MaxAttempts())
	assert.False(t, p.ShouldRetry(exception.NewBatchError("processor", "x", nil, false, true)))
}

func TestShouldRetry(t *testing.T) {
	p, err := retry.NewDefaultRetryPolicyFactory().Create(3, 10, 1, []string{"context.DeadlineExceeded"})
	require.NoError(t, err)

	assert.True(t, p.ShouldRetry(exception.NewBatchError("processor", "transient", nil, false, true)))
	assert.True(t, p.ShouldRetry(context.DeadlineExceeded))
	assert.False(t, p.ShouldRetry(errors.New("permanent")))
	assert.False(t, p.ShouldRetry(nil))
}

func TestBackOffSchedules(t *testing.T) {
	fixed, err := retry.NewDefaultRetryPolicyFactory().Create(3, 20, 0, nil)
	require.NoError(t, err)
	b := fixed.NewBackOff()
	assert.Equal(t, 20*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 20*time.Millisecond, b.NextBackOff())

	exp, err := retry.NewDefaultRetryPolicyFactory().Create(3, 10, 2, nil)
	require.NoError(t, err)
	b = exp.NewBackOff()
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 20*time.Millisecond, b.NextBackOff())
}

func TestInvalidRetryConfiguration(t *testing.T) {
	_, err := retry.NewDefaultRetryPolicyFactory().Create(0, 10, 1, nil)
	assert.True(t, exception.IsConfigurationError(err))

	_, err = retry.NewDefaultRetryPolicyFactory().Create(2, -5, 1, nil)
	assert.True(t, exception.IsConfigurationError(err))
}
