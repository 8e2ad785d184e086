package usecase

import (
	"context"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// JobLauncher starts registered jobs by name.
type JobLauncher interface {
	// Launch runs the named job to completion and returns its JobExecution.
	// The error is the job's failure cause, or a launch error when the job could not start.
	Launch(ctx context.Context, jobName string) (*model.JobExecution, error)
	// RunAll launches the named jobs concurrently and waits for all of them.
	RunAll(ctx context.Context, jobNames ...string) []LaunchResult
}

// JobOperator controls running jobs.
type JobOperator interface {
	// Stop cancels the running launch of jobName. The chunk in flight is committed or
	// rolled back first; the job then ends FAILED with a cancellation cause.
	Stop(ctx context.Context, jobName string) error
}

// JobExplorer queries the executions finished in this process.
type JobExplorer interface {
	// GetJobExecution retrieves a JobExecution by its ID.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)
	// GetJobExecutions retrieves all JobExecutions of jobName, oldest first.
	GetJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
	// GetLastJobExecution retrieves the latest JobExecution of jobName.
	GetLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error)
	// GetJobNames retrieves the names of all jobs that have run.
	GetJobNames(ctx context.Context) ([]string, error)
}

// LaunchResult pairs a job name with the outcome of its launch.
type LaunchResult struct {
	JobName   string              // JobName is the launched job.
	Execution *model.JobExecution // Execution is nil when the job never started.
	Err       error               // Err is the error returned by the launch.
	Outcome   model.RunOutcome    // Outcome is Completed or Failed(cause) with the final counters.
}
