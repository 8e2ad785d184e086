package port_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func TestIsEndOfInput(t *testing.T) {
	assert.True(t, port.IsEndOfInput(port.ErrEndOfInput))
	assert.True(t, port.IsEndOfInput(io.EOF))
	assert.True(t, port.IsEndOfInput(fmt.Errorf("csv: %w", io.EOF)))
	assert.False(t, port.IsEndOfInput(errors.New("boom")))
	assert.False(t, port.IsEndOfInput(nil))
}

func TestProcessorFunc(t *testing.T) {
	upper := port.ProcessorFunc[string, string](func(_ context.Context, s string) (string, error) {
		if s == "" {
			return "", port.ErrSkip
		}
		return strings.ToUpper(s), nil
	})

	out, err := upper.Process(context.Background(), "clerk")
	assert.NoError(t, err)
	assert.Equal(t, "CLERK", out)

	_, err = upper.Process(context.Background(), "")
	assert.True(t, port.IsSkip(err))
}

func TestPassThroughProcessor(t *testing.T) {
	out, err := port.PassThroughProcessor[int]{}.Process(context.Background(), 42)
	assert.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestStepExecutionContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, port.GetStepExecutionFromContext(ctx))

	se := model.NewStepExecution("step")
	assert.Same(t, se, port.GetStepExecutionFromContext(port.GetContextWithStepExecution(ctx, se)))
}
