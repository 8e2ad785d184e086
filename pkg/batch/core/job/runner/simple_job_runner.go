package runner

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJobRunner is an implementation of port.JobRunner that executes the steps of a job
// sequentially and stops at the first failed step.
type SimpleJobRunner struct {
	metricRecorder metrics.MetricRecorder // Recorder for job and step metrics.
	tracer         metrics.Tracer         // Tracer for job and step spans.
}

// NewSimpleJobRunner creates an instance of SimpleJobRunner.
//
// Parameters:
//   metricRecorder: The MetricRecorder to use. nil selects a no-op recorder.
//   tracer: The Tracer to use. nil selects a no-op tracer.
//
// Returns:
//   A new SimpleJobRunner instance.
func NewSimpleJobRunner(metricRecorder metrics.MetricRecorder, tracer metrics.Tracer) *SimpleJobRunner {
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &SimpleJobRunner{metricRecorder: metricRecorder, tracer: tracer}
}

type jobListenerSource interface {
	JobListeners() []port.JobExecutionListener
}

// Run executes job under a new JobExecution.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job) (*model.JobExecution, error) {
	jobExecution := model.NewJobExecution(job.JobName())
	steps := job.Steps()
	if len(steps) == 0 {
		err := exception.NewConfigurationErrorf(job.JobName(), "job has no steps")
		jobExecution.MarkAsFailed(err)
		return jobExecution, err
	}

	logger.Infof("Starting Job '%s' (Execution ID: %s).", job.JobName(), jobExecution.ID)
	jobExecution.MarkAsStarted()

	ctx, finishSpan := r.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()
	r.metricRecorder.RecordJobStart(ctx, jobExecution)

	var listeners []port.JobExecutionListener
	if src, ok := job.(jobListenerSource); ok {
		listeners = src.JobListeners()
	}
	for _, l := range listeners {
		l.BeforeJob(ctx, jobExecution)
	}

	var runErr error
	for _, step := range steps {
		stepExecution := model.NewStepExecution(step.StepName())
		jobExecution.AddStepExecution(stepExecution)
		logger.Debugf("Job '%s': executing step '%s' (StepExecution ID: %s).", job.JobName(), step.StepName(), stepExecution.ID)

		if err := step.Execute(ctx, stepExecution); err != nil {
			logger.Errorf("Job '%s': step '%s' failed: %v", job.JobName(), step.StepName(), err)
			r.tracer.RecordError(ctx, "job_runner", err)
			runErr = err
			break
		}
	}

	if runErr != nil {
		jobExecution.MarkAsFailed(runErr)
	} else {
		jobExecution.MarkAsCompleted()
	}

	for _, l := range listeners {
		l.AfterJob(ctx, jobExecution)
	}
	r.metricRecorder.RecordJobEnd(ctx, jobExecution)

	logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s, %s",
		job.JobName(), jobExecution.ID, jobExecution.Status, jobExecution.Counters())
	return jobExecution, runErr
}

var _ port.JobRunner = (*SimpleJobRunner)(nil)
