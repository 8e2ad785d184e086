package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// Every recorder owns its registry, so several recorders can live in one process.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Job Metrics
	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	// Step Metrics
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepProcessCount    *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepCommitCount     *prometheus.CounterVec
	stepRollbackCount   *prometheus.CounterVec

	// Item Metrics
	itemSkipCounter  *prometheus.CounterVec
	itemRetryCounter *prometheus.CounterVec

	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chunkbatch_job_duration_seconds",
			Help:    "Duration of job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkbatch_job_status_total",
			Help: "Total number of finished job executions by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chunkbatch_step_duration_seconds",
			Help:    "Duration of step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkbatch_step_status_total",
			Help: "Total number of finished step executions by status.",
		}, []string{"job_name", "step_name", "status"}),
		stepReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkbatch_step_read_total",
			Help: "Total records read by step.",
		}, []string{"job_name", "step_name"}),
		stepProcessCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkbatch_step_process_total",
			Help: "Total records processed by step.",
		}, []string{"job_name", "step_name"}),
		stepWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkbatch_step_write_total",
			Help: "Total records written in committed chunks by step.",
		}, []string{"job_name", "step_name"}),
		stepCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkbatch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, []string{"job_name", "step_name"}),
		stepRollbackCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkbatch_step_rollback_total",
			Help: "Total chunk rollbacks by step.",
		}, []string{"job_name", "step_name"}),
		itemSkipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkbatch_item_skip_total",
			Help: "Total records skipped by step and reason.",
		}, []string{"job_name", "step_name", "reason"}),
		itemRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkbatch_item_retry_total",
			Help: "Total processor retries by step and reason.",
		}, []string{"job_name", "step_name", "reason"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chunkbatch_operation_duration_seconds",
			Help:    "Duration of named engine operations such as chunk commits.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "step_name"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.stepReadCount,
		r.stepProcessCount,
		r.stepWriteCount,
		r.stepCommitCount,
		r.stepRollbackCount,
		r.itemSkipCounter,
		r.itemRetryCounter,
		r.operationDurationSeconds,
	)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Push sends the current state of the registry to a Prometheus Pushgateway.
// A batch process exits before it could be scraped, so metrics are pushed once at the end.
func (r *PrometheusRecorder) Push(ctx context.Context, gatewayURL, jobName string) error {
	if err := push.New(gatewayURL, jobName).Gatherer(r.registry).PushContext(ctx); err != nil {
		return err
	}
	logger.Infof("Metrics: pushed to Pushgateway %s (job=%s).", gatewayURL, jobName)
	return nil
}

// RecordJobStart records the start of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

// RecordJobEnd records the status and duration of a finished JobExecution.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	status := execution.Status.String()

	r.jobStatusCounter.WithLabelValues(execution.JobName, status).Inc()
	r.jobDurationSeconds.WithLabelValues(execution.JobName, status).Observe(duration)

	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
}

// RecordStepStart records the start of a StepExecution.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName)
}

// RecordStepEnd records the status and duration of a finished StepExecution.
// Item and chunk counters are incremented while the step runs, not here.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	jobName := ""
	if execution.JobExecution != nil {
		jobName = execution.JobExecution.JobName
	}
	status := execution.Status.String()

	r.stepStatusCounter.WithLabelValues(jobName, execution.StepName, status).Inc()
	r.stepDurationSeconds.WithLabelValues(jobName, execution.StepName, status).Observe(duration)

	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", execution.StepName, duration)
}

// RecordItemRead records successful item reads.
func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.stepReadCount.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

// RecordItemProcess records successful item processing.
func (r *PrometheusRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.stepProcessCount.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

// RecordItemSkip records item skips.
func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemSkipCounter.WithLabelValues(jobNameFrom(ctx), stepName, reason).Inc()
}

// RecordItemRetry records item retries.
func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemRetryCounter.WithLabelValues(jobNameFrom(ctx), stepName, reason).Inc()
}

// RecordChunkCommit records a committed chunk and the records it made durable.
func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	jobName := jobNameFrom(ctx)
	r.stepCommitCount.WithLabelValues(jobName, stepName).Inc()
	r.stepWriteCount.WithLabelValues(jobName, stepName).Add(float64(count))
}

// RecordChunkRollback records a rolled back chunk.
func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string, count int) {
	r.stepRollbackCount.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

// RecordDuration records the execution time of a named operation. The "step" tag, when
// present, becomes the step_name label.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDurationSeconds.WithLabelValues(name, tags["step"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
