package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/chunkbatch/pkg/batch/test"
)

func chunkJob(name string, n int, sink *testutil.InMemorySink[int]) port.Job {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	step := item.NewChunkStep[int, int](name+"Step", testutil.NewSliceReader(items...), port.PassThroughProcessor[int]{}, sink, sink, item.StepOptions{ChunkSize: 3})
	return runner.NewSimpleJob(name, step)
}

// blockingStep waits until its context is cancelled.
type blockingStep struct {
	started chan struct{}
}

func (s *blockingStep) StepName() string { return "blocking" }

func (s *blockingStep) Execute(ctx context.Context, se *model.StepExecution) error {
	_ = se.MarkAsStarted()
	close(s.started)
	<-ctx.Done()
	se.MarkAsFailed(ctx.Err())
	return ctx.Err()
}

func newLauncher(jobs ...port.Job) (*usecase.SimpleJobLauncher, *usecase.SimpleJobExplorer) {
	explorer := usecase.NewSimpleJobExplorer()
	return usecase.NewSimpleJobLauncher(jobs, runner.NewSimpleJobRunner(nil, nil), explorer), explorer
}

func TestSimpleJobLauncher_RunAllRunsIndependentJobs(t *testing.T) {
	sinkA := testutil.NewInMemorySink[int]()
	sinkB := testutil.NewInMemorySink[int]()
	failing := testutil.NewInMemorySink[int]()
	failing.FailWriteOn = 1
	launcher, explorer := newLauncher(chunkJob("a", 10, sinkA), chunkJob("b", 7, sinkB), chunkJob("c", 4, failing))

	results := launcher.RunAll(context.Background(), "a", "b", "c")

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].JobName)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.True(t, exception.IsSinkError(results[2].Err))
	assert.True(t, results[0].Outcome.IsCompleted())
	assert.Equal(t, 10, results[0].Outcome.Counters.Written)
	assert.True(t, results[2].Outcome.IsFailed())
	assert.ErrorIs(t, results[2].Outcome.Cause, exception.ErrSink)
	assert.Zero(t, results[2].Outcome.Counters.Written)
	assert.Len(t, sinkA.Committed(), 10)
	assert.Len(t, sinkB.Committed(), 7)
	assert.Empty(t, failing.Committed())

	names, err := explorer.GetJobNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)
	last, err := explorer.GetLastJobExecution(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, last.Status)
	byID, err := explorer.GetJobExecution(context.Background(), results[0].Execution.ID)
	require.NoError(t, err)
	assert.Same(t, results[0].Execution, byID)
}

func TestSimpleJobLauncher_UnknownJob(t *testing.T) {
	launcher, _ := newLauncher()

	_, err := launcher.Launch(context.Background(), "missing")

	assert.True(t, exception.IsConfigurationError(err))

	results := launcher.RunAll(context.Background(), "missing")
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Execution)
	assert.True(t, results[0].Outcome.IsFailed())
	assert.True(t, exception.IsConfigurationError(results[0].Outcome.Cause))
}

func TestDefaultJobOperator_StopCancelsRunningJob(t *testing.T) {
	step := &blockingStep{started: make(chan struct{})}
	launcher, _ := newLauncher(runner.NewSimpleJob("long", step))
	operator := usecase.NewDefaultJobOperator(launcher)

	done := make(chan error, 1)
	go func() {
		_, err := launcher.Launch(context.Background(), "long")
		done <- err
	}()
	<-step.started

	_, err := launcher.Launch(context.Background(), "long")
	assert.Error(t, err, "a running job cannot be launched twice")

	require.NoError(t, operator.Stop(context.Background(), "long"))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop")
	}
	assert.Error(t, operator.Stop(context.Background(), "long"))
}
