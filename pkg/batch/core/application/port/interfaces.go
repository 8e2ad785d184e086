// Package port defines the collaborator contracts of the chunk engine: the record source
// (ItemReader), the item processor, the item sink (ItemWriter), and the listener hooks.
package port

import (
	"context"
	"errors"
	"io"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

var (
	// ErrEndOfInput is returned by ItemReader.Read once the source is exhausted.
	ErrEndOfInput = errors.New("end of input")
	// ErrSkip is returned by ItemProcessor.Process to drop a record on purpose.
	// It is a signal, not a failure, and is not subject to the skip limit.
	ErrSkip = errors.New("skip item")
)

// IsEndOfInput reports whether err signals source exhaustion. io.EOF is accepted as well.
func IsEndOfInput(err error) bool {
	return errors.Is(err, ErrEndOfInput) || errors.Is(err, io.EOF)
}

// IsSkip reports whether err is the explicit skip signal.
func IsSkip(err error) bool {
	return errors.Is(err, ErrSkip)
}

// ItemReader is the record source. It owns its read cursor and end-of-input detection.
type ItemReader[O any] interface {
	// Read returns the next record, ErrEndOfInput when exhausted, or a SourceError for a
	// record that could not be read or mapped. Read is not called again after ErrEndOfInput.
	Read(ctx context.Context) (O, error)
}

// ItemProcessor transforms one input record into one output record.
type ItemProcessor[I, O any] interface {
	// Process returns the transformed record, ErrSkip to drop it, or a ProcessingError.
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter is the item sink. Write is called once per full or final chunk and must be
// atomic: either every item becomes durable when t commits, or none does.
type ItemWriter[I any] interface {
	Write(ctx context.Context, t tx.Tx, items []I) error
}

// ItemStream is implemented by readers, processors, and writers that hold resources.
// The engine opens streams before the first read and closes them after the run ends.
type ItemStream interface {
	Open(ctx context.Context, ec model.ExecutionContext) error
	Close(ctx context.Context) error
}

// ProcessorFunc adapts a function to ItemProcessor.
type ProcessorFunc[I, O any] func(ctx context.Context, item I) (O, error)

// Process implements ItemProcessor.
func (f ProcessorFunc[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

// PassThroughProcessor returns every item unchanged.
type PassThroughProcessor[T any] struct{}

// Process implements ItemProcessor.
func (PassThroughProcessor[T]) Process(_ context.Context, item T) (T, error) {
	return item, nil
}

// Step is one chunk engine run inside a job.
type Step interface {
	StepName() string
	// Execute drives the run to Completed or Failed, recording progress in stepExecution.
	// The returned error is the failure cause; it is nil exactly when the run completed.
	Execute(ctx context.Context, stepExecution *model.StepExecution) error
}

// Job is an ordered sequence of steps. A job stops at the first failed step.
type Job interface {
	JobName() string
	Steps() []Step
}

// JobRunner executes the steps of a job in order under a fresh JobExecution.
type JobRunner interface {
	// Run returns the finished JobExecution and the cause of its failure, if any.
	Run(ctx context.Context, job Job) (*model.JobExecution, error)
}

// StepExecutionListener is notified around a whole run.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	// AfterStep is called after the run reached Completed or Failed.
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener is notified around every chunk commit.
type ChunkListener interface {
	// BeforeChunk is called when the engine enters Committing, before the transaction begins.
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution, size int)
	// AfterChunk is called after a successful commit.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution, size int)
	// AfterChunkError is called after a failed write or commit has been rolled back.
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, size int, err error)
}

// SkipListener is notified for every record dropped without failing the run.
type SkipListener interface {
	// OnSkipInRead is called when the skip policy absorbed a SourceError.
	OnSkipInRead(ctx context.Context, err error)
	// OnSkipInProcess is called for an explicit skip (err wraps ErrSkip) or an absorbed ProcessingError.
	OnSkipInProcess(ctx context.Context, item interface{}, err error)
}

// ItemReadListener is notified of every SourceError, whether skipped or fatal.
type ItemReadListener interface {
	OnReadError(ctx context.Context, err error)
}

// ItemProcessListener is notified of every ProcessingError, whether skipped or fatal.
type ItemProcessListener interface {
	OnProcessError(ctx context.Context, item interface{}, err error)
}

// ItemWriteListener is notified when a chunk write fails.
type ItemWriteListener interface {
	OnWriteError(ctx context.Context, items []interface{}, err error)
}

// RetryItemListener is notified before a processor call is retried.
type RetryItemListener interface {
	OnRetryProcess(ctx context.Context, item interface{}, attempt int, err error)
}

// JobExecutionListener is notified around a whole job launch.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

type contextKey string

// StepExecutionKey is the context key under which the engine publishes the running StepExecution.
const StepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution stores se in ctx.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, StepExecutionKey, se)
}

// GetStepExecutionFromContext returns the StepExecution stored in ctx, or nil.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(StepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
