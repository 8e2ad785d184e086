// Package metrics defines the observability ports of chunkbatch. Backends live in
// pkg/batch/infrastructure/metrics; the no-op implementations here are the fallback.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// MetricRecorder records counters and durations of job and step executions.
// Implementations must be safe for concurrent use, since independent runs share one recorder.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead records one successfully read record.
	RecordItemRead(ctx context.Context, stepName string)
	// RecordItemProcess records one successfully processed record.
	RecordItemProcess(ctx context.Context, stepName string)
	// RecordItemSkip records one dropped record. reason is "filter", or the error kind name.
	RecordItemSkip(ctx context.Context, stepName string, reason string)
	// RecordItemRetry records one retried processor call.
	RecordItemRetry(ctx context.Context, stepName string, reason string)

	// RecordChunkCommit records a committed chunk of count records.
	RecordChunkCommit(ctx context.Context, stepName string, count int)
	// RecordChunkRollback records a rolled back chunk of count records.
	RecordChunkRollback(ctx context.Context, stepName string, count int)

	// RecordDuration records the duration of a named operation, e.g. "chunk_write".
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// Tracer opens spans around jobs, steps, and chunk commits.
// Every Start* call returns a derived context and a function that ends the span.
type Tracer interface {
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	StartChunkSpan(ctx context.Context, execution *model.StepExecution, size int) (context.Context, func())

	// RecordError marks the current span as failed.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event to the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}

// NoOpMetricRecorder discards everything.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution) {}
func (r *NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution) {}
func (r *NoOpMetricRecorder) RecordStepStart(context.Context, *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordStepEnd(context.Context, *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordItemRead(context.Context, string) {}
func (r *NoOpMetricRecorder) RecordItemProcess(context.Context, string) {}
func (r *NoOpMetricRecorder) RecordItemSkip(context.Context, string, string) {}
func (r *NoOpMetricRecorder) RecordItemRetry(context.Context, string, string) {}
func (r *NoOpMetricRecorder) RecordChunkCommit(context.Context, string, int) {}
func (r *NoOpMetricRecorder) RecordChunkRollback(context.Context, string, int) {}
func (r *NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {
}

// NoOpTracer creates no spans.
type NoOpTracer struct{}

// NewNoOpTracer creates a NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartJobSpan(ctx context.Context, _ *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStepSpan(ctx context.Context, _ *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartChunkSpan(ctx context.Context, _ *model.StepExecution, _ int) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(context.Context, string, error) {}
func (t *NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var (
	_ MetricRecorder = (*NoOpMetricRecorder)(nil)
	_ Tracer         = (*NoOpTracer)(nil)
)
