package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

const instrumentationName = "github.com/tigerroll/chunkbatch"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
// Job, step and chunk spans nest through the context the engine passes along.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer backed by tp.
func NewOpenTelemetryTracer(tp trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tp.Tracer(instrumentationName)}
}

// StartJobSpan starts a new span for a JobExecution. The span status follows the final
// job status when the returned function is called.
func (t *OpenTelemetryTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "job "+execution.JobName, trace.WithAttributes(
		attribute.String("batch.job.name", execution.JobName),
		attribute.String("batch.job.execution_id", execution.ID),
	))
	return ctx, func() {
		span.SetAttributes(attribute.String("batch.status", execution.Status.String()))
		if execution.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, firstFailure(execution.Failures))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// StartStepSpan starts a new span for a StepExecution and annotates it with the final
// counters when the returned function is called.
func (t *OpenTelemetryTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+execution.StepName, trace.WithAttributes(
		attribute.String("batch.step.name", execution.StepName),
		attribute.String("batch.step.execution_id", execution.ID),
	))
	return ctx, func() {
		c := execution.Counters()
		span.SetAttributes(
			attribute.String("batch.status", execution.Status.String()),
			attribute.Int("batch.read_count", c.Read),
			attribute.Int("batch.write_count", c.Written),
			attribute.Int("batch.skip_count", c.Skipped()),
			attribute.Int("batch.commit_count", c.CommittedChunks),
			attribute.Int("batch.rollback_count", c.RolledBackChunks),
		)
		if execution.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, firstFailure(execution.Failures))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// StartChunkSpan starts a span covering one chunk transaction.
func (t *OpenTelemetryTracer) StartChunkSpan(ctx context.Context, execution *model.StepExecution, size int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "chunk", trace.WithAttributes(
		attribute.String("batch.step.name", execution.StepName),
		attribute.Int("batch.chunk.size", size),
		attribute.Int("batch.chunk.number", execution.CommitCount+execution.RollbackCount+1),
	))
	return ctx, func() { span.End() }
}

// RecordError records an error on the current span without changing its status.
// Skipped records fail only themselves, so the status is left to the span owner.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
}

// RecordEvent adds an event to the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func toAttributes(m map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return attrs
}

func firstFailure(failures model.FailureList) string {
	if len(failures) == 0 {
		return ""
	}
	return failures[0]
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
