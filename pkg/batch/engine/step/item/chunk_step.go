// Package item implements the chunk-oriented step: the engine that pulls records from an
// ItemReader, runs them through an ItemProcessor, and commits them through an ItemWriter in
// fixed-size chunks, one transaction per chunk.
package item

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// StepOptions carries the tunables of a ChunkStep. Zero values of the policies and
// observability hooks fall back to fail-fast, no retry, and no-op recorders.
type StepOptions struct {
	ChunkSize      int                    // Items per transaction. Must be >= 1.
	SkipPolicy     skip.SkipPolicy        // Decides which read and process failures are skipped.
	RetryPolicy    retry.RetryPolicy      // Decides which processor failures are retried.
	IsolationLevel string                 // Transaction isolation level name, e.g. "READ_COMMITTED".
	MetricRecorder metrics.MetricRecorder // Recorder for chunk and item metrics.
	Tracer         metrics.Tracer         // Tracer for the step span.
}

// ChunkStep is the chunk engine for one run. A ChunkStep value may be executed many times,
// but each Execute call needs its own StepExecution, and the reader cursor is not rewound.
type ChunkStep[I, O any] struct {
	name      string
	reader    port.ItemReader[I]
	processor port.ItemProcessor[I, O]
	writer    port.ItemWriter[O]
	txManager tx.TransactionManager
	chunkSize int
	txOptions *sql.TxOptions

	skipPolicy  skip.SkipPolicy
	retryPolicy retry.RetryPolicy

	stepExecutionListeners []port.StepExecutionListener
	chunkListeners         []port.ChunkListener
	skipListeners          []port.SkipListener
	itemReadListeners      []port.ItemReadListener
	itemProcessListeners   []port.ItemProcessListener
	itemWriteListeners     []port.ItemWriteListener
	retryItemListeners     []port.RetryItemListener

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep wires the three collaborators and the transaction manager into a step.
// Configuration is validated when the step is executed, so an invalid step still fails
// with a ConfigurationError before reading anything.
//
// Parameters:
//   name: The step name, used in logs, errors, and execution context keys.
//   reader: The ItemReader that supplies input items.
//   processor: The ItemProcessor that transforms items. A nil output filters the item.
//   writer: The ItemWriter that receives each chunk inside its transaction.
//   txManager: The TransactionManager that opens one transaction per chunk.
//   opts: The StepOptions of this step.
//
// Returns:
//   A new ChunkStep instance.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	txManager tx.TransactionManager,
	opts StepOptions,
) *ChunkStep[I, O] {
	s := &ChunkStep[I, O]{
		name:           name,
		reader:         reader,
		processor:      processor,
		writer:         writer,
		txManager:      txManager,
		chunkSize:      opts.ChunkSize,
		txOptions:      &sql.TxOptions{Isolation: parseIsolationLevel(opts.IsolationLevel)},
		skipPolicy:     opts.SkipPolicy,
		retryPolicy:    opts.RetryPolicy,
		metricRecorder: opts.MetricRecorder,
		tracer:         opts.Tracer,
	}
	if s.skipPolicy == nil {
		s.skipPolicy = skip.FailFast()
	}
	if s.retryPolicy == nil {
		s.retryPolicy = retry.NoRetry()
	}
	if s.metricRecorder == nil {
		s.metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if s.tracer == nil {
		s.tracer = metrics.NewNoOpTracer()
	}
	return s
}

// StepName implements port.Step.
func (s *ChunkStep[I, O]) StepName() string {
	return s.name
}

// RegisterListener attaches l to every listener hook it implements.
func (s *ChunkStep[I, O]) RegisterListener(l interface{}) {
	if sl, ok := l.(port.StepExecutionListener); ok {
		s.stepExecutionListeners = append(s.stepExecutionListeners, sl)
	}
	if cl, ok := l.(port.ChunkListener); ok {
		s.chunkListeners = append(s.chunkListeners, cl)
	}
	if kl, ok := l.(port.SkipListener); ok {
		s.skipListeners = append(s.skipListeners, kl)
	}
	if rl, ok := l.(port.ItemReadListener); ok {
		s.itemReadListeners = append(s.itemReadListeners, rl)
	}
	if pl, ok := l.(port.ItemProcessListener); ok {
		s.itemProcessListeners = append(s.itemProcessListeners, pl)
	}
	if wl, ok := l.(port.ItemWriteListener); ok {
		s.itemWriteListeners = append(s.itemWriteListeners, wl)
	}
	if tl, ok := l.(port.RetryItemListener); ok {
		s.retryItemListeners = append(s.retryItemListeners, tl)
	}
}

func (s *ChunkStep[I, O]) validate() error {
	var missing []string
	if s.reader == nil {
		missing = append(missing, "reader")
	}
	if s.processor == nil {
		missing = append(missing, "processor")
	}
	if s.writer == nil {
		missing = append(missing, "writer")
	}
	if s.txManager == nil {
		missing = append(missing, "transaction manager")
	}
	if len(missing) > 0 {
		return exception.NewConfigurationErrorf(s.name, "missing adapter(s): %s", strings.Join(missing, ", "))
	}
	if s.chunkSize < 1 {
		return exception.NewConfigurationErrorf(s.name, "chunk size must be >= 1, got %d", s.chunkSize)
	}
	if s.skipPolicy.SkipLimit() < 0 {
		return exception.NewConfigurationErrorf(s.name, "skip limit must be >= 0, got %d", s.skipPolicy.SkipLimit())
	}
	return nil
}

// Execute implements port.Step. It returns nil exactly when the run completed; otherwise
// the returned error is the failure cause, also recorded in stepExecution.
//
// Parameters:
//   ctx: The context for the run. Cancellation is observed between items.
//   stepExecution: A fresh StepExecution that receives counters, status, and checkpoints.
//
// Returns:
//   nil on completion, otherwise the error that failed the run.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, stepExecution *model.StepExecution) error {
	if stepExecution == nil || stepExecution.Frozen() {
		return exception.NewConfigurationErrorf(s.name, "a fresh StepExecution is required")
	}
	if err := s.validate(); err != nil {
		logger.Errorf("ChunkStep '%s': invalid configuration: %v", s.name, err)
		stepExecution.MarkAsFailed(err)
		return err
	}
	if err := stepExecution.MarkAsStarted(); err != nil {
		return exception.NewConfigurationError(s.name, "StepExecution cannot be started", err)
	}

	ctx = port.GetContextWithStepExecution(ctx, stepExecution)
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()

	logger.Infof("ChunkStep '%s' executing (chunk size: %d, skip limit: %d, max attempts: %d).",
		s.name, s.chunkSize, s.skipPolicy.SkipLimit(), s.retryPolicy.MaxAttempts())
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	opened, runErr := s.openStreams(ctx, stepExecution)
	if runErr == nil {
		runErr = s.run(ctx, stepExecution)
	}
	if closeErr := closeStreams(ctx, opened); closeErr != nil {
		logger.Warnf("ChunkStep '%s': failed to close item streams: %v", s.name, closeErr)
		if runErr == nil {
			runErr = exception.NewBatchError(s.name, "Failed to close item streams", closeErr, false, false)
		}
	}

	if runErr != nil {
		s.tracer.RecordError(ctx, s.name, runErr)
		stepExecution.MarkAsFailed(runErr)
		logger.Errorf("ChunkStep '%s' failed: %v", s.name, runErr)
	} else if err := stepExecution.MarkAsCompleted(); err != nil {
		runErr = err
		stepExecution.MarkAsFailed(err)
	}

	for _, l := range s.stepExecutionListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)
	logger.Infof("ChunkStep '%s' finished. Status: %s, %s", s.name, stepExecution.Status, stepExecution.Counters())
	return runErr
}

// run is the Reading/Processing/Accumulating/Committing loop. It returns nil once the source
// is exhausted and every chunk is committed.
func (s *ChunkStep[I, O]) run(ctx context.Context, se *model.StepExecution) error {
	chunk := make([]O, 0, s.chunkSize)

	for {
		// Cancellation is honoured only here, so a record is never half processed
		// and a chunk is never interrupted while committing.
		if err := ctx.Err(); err != nil {
			return exception.NewBatchError(s.name, "Run cancelled at read boundary", err, false, false)
		}
		if err := se.TransitionState(model.ChunkStateReading); err != nil {
			return err
		}

		item, readErr := s.reader.Read(ctx)
		if readErr != nil {
			if port.IsEndOfInput(readErr) {
				logger.Debugf("ChunkStep '%s': end of input reached with %d buffered item(s).", s.name, len(chunk))
				if len(chunk) > 0 {
					return s.commitChunk(ctx, se, chunk)
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return exception.NewBatchError(s.name, "Run cancelled while reading", ctxErr, false, false)
			}

			srcErr := asSourceError(s.name, readErr)
			s.notifyReadError(ctx, srcErr)
			if s.skipPolicy.ShouldSkip(srcErr, se.ErrorSkipCount()) {
				se.SkipReadCount++
				logger.Warnf("ChunkStep '%s': Item read skipped (Skip Count: %d/%d): %v", s.name, se.ErrorSkipCount(), s.skipPolicy.SkipLimit(), srcErr)
				s.notifySkipRead(ctx, srcErr)
				continue
			}
			return srcErr
		}
		se.ReadCount++
		s.metricRecorder.RecordItemRead(ctx, s.name)

		if err := se.TransitionState(model.ChunkStateProcessing); err != nil {
			return err
		}
		out, procErr := s.process(ctx, item)
		if procErr != nil {
			// A retry interrupted by cancellation is not a record failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return exception.NewBatchError(s.name, "Run cancelled while processing", ctxErr, false, false)
			}
			if port.IsSkip(procErr) {
				se.FilterCount++
				logger.Debugf("ChunkStep '%s': Item filtered by processor.", s.name)
				s.notifyFilter(ctx, item, procErr)
				continue
			}

			pErr := asProcessingError(s.name, procErr)
			s.notifyProcessError(ctx, item, pErr)
			if s.skipPolicy.ShouldSkip(pErr, se.ErrorSkipCount()) {
				se.SkipProcessCount++
				logger.Warnf("ChunkStep '%s': Item process skipped (Skip Count: %d/%d): %v", s.name, se.ErrorSkipCount(), s.skipPolicy.SkipLimit(), pErr)
				s.notifySkipProcess(ctx, item, pErr)
				continue
			}
			return pErr
		}
		se.ProcessCount++
		s.metricRecorder.RecordItemProcess(ctx, s.name)

		if err := se.TransitionState(model.ChunkStateAccumulating); err != nil {
			return err
		}
		chunk = append(chunk, out)
		if len(chunk) < s.chunkSize {
			continue
		}
		if err := s.commitChunk(ctx, se, chunk); err != nil {
			return err
		}
		// The writer may keep the committed slice; start a fresh buffer.
		chunk = make([]O, 0, s.chunkSize)
	}
}

// process calls the processor, retrying per the retry policy. ErrSkip is never retried.
func (s *ChunkStep[I, O]) process(ctx context.Context, item I) (O, error) {
	maxAttempts := s.retryPolicy.MaxAttempts()
	if maxAttempts <= 1 {
		return s.processor.Process(ctx, item)
	}

	attempt := 0
	operation := func() (O, error) {
		attempt++
		out, err := s.processor.Process(ctx, item)
		if err == nil {
			return out, nil
		}
		if port.IsSkip(err) || attempt >= maxAttempts || !s.retryPolicy.ShouldRetry(err) {
			return out, backoff.Permanent(err)
		}
		logger.Warnf("ChunkStep '%s': Item process failed (Attempt %d/%d). Retrying: %v", s.name, attempt, maxAttempts, err)
		s.notifyRetryProcess(ctx, item, attempt, err)
		return out, err
	}

	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.retryPolicy.NewBackOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return out, err
}

// commitChunk runs the Committing state: the transaction is opened right before Write and
// closed right after, and counters move only when the commit succeeded.
func (s *ChunkStep[I, O]) commitChunk(ctx context.Context, se *model.StepExecution, chunk []O) error {
	if err := se.TransitionState(model.ChunkStateCommitting); err != nil {
		return err
	}
	size := len(chunk)

	chunkCtx, endSpan := s.tracer.StartChunkSpan(ctx, se, size)
	defer endSpan()
	for _, l := range s.chunkListeners {
		l.BeforeChunk(chunkCtx, se, size)
	}

	start := time.Now()
	t, err := s.txManager.Begin(chunkCtx, s.txOptions)
	if err != nil {
		sinkErr := exception.NewSinkError(s.name, "Failed to begin transaction for chunk", err)
		s.afterChunkError(chunkCtx, se, chunk, sinkErr)
		return sinkErr
	}

	txCtx := tx.WithTx(chunkCtx, t)
	if writeErr := s.writer.Write(txCtx, t, chunk); writeErr != nil {
		var cause error = writeErr
		if rbErr := s.txManager.Rollback(t); rbErr != nil {
			cause = multierror.Append(cause, rbErr)
		}
		se.RollbackCount++
		sinkErr := exception.NewSinkError(s.name, "Chunk write failed, transaction rolled back", cause)
		s.notifyWriteError(chunkCtx, chunk, sinkErr)
		s.afterChunkError(chunkCtx, se, chunk, sinkErr)
		return sinkErr
	}

	if commitErr := s.txManager.Commit(t); commitErr != nil {
		se.RollbackCount++
		sinkErr := exception.NewSinkError(s.name, "Failed to commit chunk transaction", commitErr)
		s.afterChunkError(chunkCtx, se, chunk, sinkErr)
		return sinkErr
	}

	se.WriteCount += size
	se.CommitCount++
	s.metricRecorder.RecordChunkCommit(chunkCtx, s.name, size)
	s.metricRecorder.RecordDuration(chunkCtx, "chunk_commit", time.Since(start), map[string]string{"step": s.name})
	logger.Debugf("ChunkStep '%s': chunk #%d committed (%d item(s), %d written in total).", s.name, se.CommitCount, size, se.WriteCount)
	for _, l := range s.chunkListeners {
		l.AfterChunk(chunkCtx, se, size)
	}
	return nil
}

func (s *ChunkStep[I, O]) openStreams(ctx context.Context, se *model.StepExecution) ([]port.ItemStream, error) {
	var opened []port.ItemStream
	candidates := []struct {
		component interface{}
		wrap      func(string, string, error) *exception.BatchError
	}{
		{s.reader, exception.NewSourceError},
		{s.processor, exception.NewProcessingError},
		{s.writer, exception.NewSinkError},
	}
	for _, c := range candidates {
		stream, ok := c.component.(port.ItemStream)
		if !ok || containsStream(opened, stream) {
			continue
		}
		if err := stream.Open(ctx, se.ExecutionContext); err != nil {
			return opened, c.wrap(s.name, "Failed to open item stream", err)
		}
		opened = append(opened, stream)
	}
	return opened, nil
}

func containsStream(streams []port.ItemStream, target port.ItemStream) bool {
	for _, st := range streams {
		if st == target {
			return true
		}
	}
	return false
}

func closeStreams(ctx context.Context, streams []port.ItemStream) error {
	var result *multierror.Error
	for i := len(streams) - 1; i >= 0; i-- {
		if err := streams[i].Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func asSourceError(module string, err error) error {
	if exception.KindOf(err) != "" {
		return err
	}
	return exception.NewSourceError(module, "Item read failed", err)
}

func asProcessingError(module string, err error) error {
	if exception.KindOf(err) != "" {
		return err
	}
	return exception.NewProcessingError(module, "Item process failed", err)
}

// parseIsolationLevel maps a configuration string to sql.IsolationLevel.
func parseIsolationLevel(level string) sql.IsolationLevel {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(level), "_", " ")) {
	case "READ UNCOMMITTED":
		return sql.LevelReadUncommitted
	case "READ COMMITTED":
		return sql.LevelReadCommitted
	case "REPEATABLE READ":
		return sql.LevelRepeatableRead
	case "SERIALIZABLE":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// --- Listener notifiers ---

func (s *ChunkStep[I, O]) notifyReadError(ctx context.Context, err error) {
	for _, l := range s.itemReadListeners {
		l.OnReadError(ctx, err)
	}
}

func (s *ChunkStep[I, O]) notifySkipRead(ctx context.Context, err error) {
	s.tracer.RecordError(ctx, s.name, err)
	s.metricRecorder.RecordItemSkip(ctx, s.name, exception.SourceErrorType)
	for _, l := range s.skipListeners {
		l.OnSkipInRead(ctx, err)
	}
}

func (s *ChunkStep[I, O]) notifyFilter(ctx context.Context, item I, err error) {
	s.metricRecorder.RecordItemSkip(ctx, s.name, "filter")
	for _, l := range s.skipListeners {
		l.OnSkipInProcess(ctx, item, err)
	}
}

func (s *ChunkStep[I, O]) notifyProcessError(ctx context.Context, item I, err error) {
	for _, l := range s.itemProcessListeners {
		l.OnProcessError(ctx, item, err)
	}
}

func (s *ChunkStep[I, O]) notifySkipProcess(ctx context.Context, item I, err error) {
	s.tracer.RecordError(ctx, s.name, err)
	s.metricRecorder.RecordItemSkip(ctx, s.name, exception.ProcessingErrorType)
	for _, l := range s.skipListeners {
		l.OnSkipInProcess(ctx, item, err)
	}
}

func (s *ChunkStep[I, O]) notifyRetryProcess(ctx context.Context, item I, attempt int, err error) {
	s.metricRecorder.RecordItemRetry(ctx, s.name, exception.KindOf(asProcessingError(s.name, err)))
	for _, l := range s.retryItemListeners {
		l.OnRetryProcess(ctx, item, attempt, err)
	}
}

func (s *ChunkStep[I, O]) notifyWriteError(ctx context.Context, chunk []O, err error) {
	if len(s.itemWriteListeners) == 0 {
		return
	}
	items := make([]interface{}, len(chunk))
	for i, it := range chunk {
		items[i] = it
	}
	for _, l := range s.itemWriteListeners {
		l.OnWriteError(ctx, items, err)
	}
}

func (s *ChunkStep[I, O]) afterChunkError(ctx context.Context, se *model.StepExecution, chunk []O, err error) {
	s.tracer.RecordError(ctx, s.name, err)
	s.metricRecorder.RecordChunkRollback(ctx, s.name, len(chunk))
	for _, l := range s.chunkListeners {
		l.AfterChunkError(ctx, se, len(chunk), err)
	}
}
