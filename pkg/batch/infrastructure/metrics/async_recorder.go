package metrics

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// MetricEvent represents a metric event to be recorded asynchronously.
type MetricEvent struct {
	Type string
	// Ctx keeps the values of the caller's context (the running StepExecution) without its
	// cancellation, so labels resolve the same way as in a synchronous call.
	Ctx           context.Context
	JobExecution  *model.JobExecution
	StepExecution *model.StepExecution
	StepName      string
	Count         int
	Reason        string
	Name          string
	Duration      time.Duration
	Tags          map[string]string
}

// Metric event type constants
const (
	MetricEventTypeJobStart       = "job_start"
	MetricEventTypeJobEnd         = "job_end"
	MetricEventTypeStepStart      = "step_start"
	MetricEventTypeStepEnd        = "step_end"
	MetricEventTypeItemRead       = "item_read"
	MetricEventTypeItemProcess    = "item_process"
	MetricEventTypeItemSkip       = "item_skip"
	MetricEventTypeItemRetry      = "item_retry"
	MetricEventTypeChunkCommit    = "chunk_commit"
	MetricEventTypeChunkRollback  = "chunk_rollback"
	MetricEventTypeRecordDuration = "record_duration"
)

// AsyncMetricRecorder asynchronously records metrics by pushing events to a channel
// and processing them in a separate goroutine. Events arriving while the queue is full
// are dropped with a warning; the engine never blocks on metrics.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder creates a new asynchronous metric recorder.
// A bufferSize of 0 or less uses a default of 100.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			// Drain what is already queued before exiting.
			remainingEvents := len(r.eventQueue)
			for i := 0; i < remainingEvents; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remainingEvents)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	ctx := event.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	switch event.Type {
	case MetricEventTypeJobStart:
		r.syncRecorder.RecordJobStart(ctx, event.JobExecution)
	case MetricEventTypeJobEnd:
		r.syncRecorder.RecordJobEnd(ctx, event.JobExecution)
	case MetricEventTypeStepStart:
		r.syncRecorder.RecordStepStart(ctx, event.StepExecution)
	case MetricEventTypeStepEnd:
		r.syncRecorder.RecordStepEnd(ctx, event.StepExecution)
	case MetricEventTypeItemRead:
		r.syncRecorder.RecordItemRead(ctx, event.StepName)
	case MetricEventTypeItemProcess:
		r.syncRecorder.RecordItemProcess(ctx, event.StepName)
	case MetricEventTypeItemSkip:
		r.syncRecorder.RecordItemSkip(ctx, event.StepName, event.Reason)
	case MetricEventTypeItemRetry:
		r.syncRecorder.RecordItemRetry(ctx, event.StepName, event.Reason)
	case MetricEventTypeChunkCommit:
		r.syncRecorder.RecordChunkCommit(ctx, event.StepName, event.Count)
	case MetricEventTypeChunkRollback:
		r.syncRecorder.RecordChunkRollback(ctx, event.StepName, event.Count)
	case MetricEventTypeRecordDuration:
		r.syncRecorder.RecordDuration(ctx, event.Name, event.Duration, event.Tags)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after it has processed every queued event. It is idempotent.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

func (r *AsyncMetricRecorder) sendEvent(ctx context.Context, event MetricEvent) {
	event.Ctx = context.WithoutCancel(ctx)
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s). Event discarded.", event.Type)
	}
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeJobStart, JobExecution: execution})
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeJobEnd, JobExecution: execution})
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeStepStart, StepExecution: execution})
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeStepEnd, StepExecution: execution})
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemRead, StepName: stepName})
}

func (r *AsyncMetricRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemProcess, StepName: stepName})
}

func (r *AsyncMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemSkip, StepName: stepName, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemRetry, StepName: stepName, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeChunkCommit, StepName: stepName, Count: count})
}

func (r *AsyncMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string, count int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeChunkRollback, StepName: stepName, Count: count})
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeRecordDuration, Name: name, Duration: duration, Tags: tags})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
