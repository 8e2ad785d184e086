package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// OpenTelemetryRecorder is a metrics.MetricRecorder publishing OpenTelemetry instruments.
type OpenTelemetryRecorder struct {
	jobs           metric.Int64Counter
	steps          metric.Int64Counter
	itemsRead      metric.Int64Counter
	itemsProcessed metric.Int64Counter
	itemsWritten   metric.Int64Counter
	itemsSkipped   metric.Int64Counter
	itemsRetried   metric.Int64Counter
	chunkCommits   metric.Int64Counter
	chunkRollbacks metric.Int64Counter
	duration       metric.Float64Histogram
}

// NewOpenTelemetryRecorder creates the instruments on a meter obtained from mp.
func NewOpenTelemetryRecorder(mp metric.MeterProvider) (*OpenTelemetryRecorder, error) {
	meter := mp.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{}

	var err error
	if r.jobs, err = meter.Int64Counter("chunkbatch.jobs", metric.WithDescription("Finished job executions by status.")); err != nil {
		return nil, err
	}
	if r.steps, err = meter.Int64Counter("chunkbatch.steps", metric.WithDescription("Finished step executions by status.")); err != nil {
		return nil, err
	}
	if r.itemsRead, err = meter.Int64Counter("chunkbatch.items.read", metric.WithUnit("{record}")); err != nil {
		return nil, err
	}
	if r.itemsProcessed, err = meter.Int64Counter("chunkbatch.items.processed", metric.WithUnit("{record}")); err != nil {
		return nil, err
	}
	if r.itemsWritten, err = meter.Int64Counter("chunkbatch.items.written", metric.WithUnit("{record}")); err != nil {
		return nil, err
	}
	if r.itemsSkipped, err = meter.Int64Counter("chunkbatch.items.skipped", metric.WithUnit("{record}")); err != nil {
		return nil, err
	}
	if r.itemsRetried, err = meter.Int64Counter("chunkbatch.items.retried", metric.WithUnit("{attempt}")); err != nil {
		return nil, err
	}
	if r.chunkCommits, err = meter.Int64Counter("chunkbatch.chunks.committed", metric.WithUnit("{chunk}")); err != nil {
		return nil, err
	}
	if r.chunkRollbacks, err = meter.Int64Counter("chunkbatch.chunks.rolled_back", metric.WithUnit("{chunk}")); err != nil {
		return nil, err
	}
	if r.duration, err = meter.Float64Histogram("chunkbatch.duration", metric.WithUnit("s"),
		metric.WithDescription("Duration of jobs, steps and named operations.")); err != nil {
		return nil, err
	}
	return r, nil
}

func stepAttrs(ctx context.Context, stepName string, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("job_name", jobNameFrom(ctx)),
		attribute.String("step_name", stepName),
	}, extra...)
	return metric.WithAttributes(attrs...)
}

func (r *OpenTelemetryRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

func (r *OpenTelemetryRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	if execution.EndTime == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobs.Add(ctx, 1, attrs)
	r.duration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
}

func (r *OpenTelemetryRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

func (r *OpenTelemetryRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	jobName := ""
	if execution.JobExecution != nil {
		jobName = execution.JobExecution.JobName
	}
	attrs := metric.WithAttributes(
		attribute.String("job_name", jobName),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	)
	r.steps.Add(ctx, 1, attrs)
	r.duration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
}

func (r *OpenTelemetryRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.itemsRead.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.itemsProcessed.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemsSkipped.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("reason", reason)))
}

func (r *OpenTelemetryRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemsRetried.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("reason", reason)))
}

func (r *OpenTelemetryRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	attrs := stepAttrs(ctx, stepName)
	r.chunkCommits.Add(ctx, 1, attrs)
	r.itemsWritten.Add(ctx, int64(count), attrs)
}

func (r *OpenTelemetryRecorder) RecordChunkRollback(ctx context.Context, stepName string, count int) {
	r.chunkRollbacks.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
