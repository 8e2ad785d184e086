package usecase

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJobLauncher implements JobLauncher for local, in-process execution.
// Distinct jobs may run concurrently; a job is never launched twice at the same time.
type SimpleJobLauncher struct {
	jobs      map[string]port.Job // Registered jobs keyed by job name.
	jobRunner port.JobRunner      // Runner that executes each launched job.
	explorer  *SimpleJobExplorer  // Records every launched execution.

	// activeJobCancellations holds the cancel functions of running jobs, keyed by job name.
	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
}

// NewSimpleJobLauncher creates a new SimpleJobLauncher for jobs.
//
// Parameters:
//   jobs: The jobs that can be launched. Later entries replace earlier ones with the same name.
//   runner: The JobRunner that executes a launched job.
//   explorer: The SimpleJobExplorer that records executions.
//
// Returns:
//   A new SimpleJobLauncher instance.
func NewSimpleJobLauncher(jobs []port.Job, runner port.JobRunner, explorer *SimpleJobExplorer) *SimpleJobLauncher {
	registry := make(map[string]port.Job, len(jobs))
	for _, j := range jobs {
		if j == nil {
			continue
		}
		if _, dup := registry[j.JobName()]; dup {
			logger.Warnf("JobLauncher: job '%s' is registered more than once; the last registration wins.", j.JobName())
		}
		registry[j.JobName()] = j
	}
	return &SimpleJobLauncher{
		jobs:                   registry,
		jobRunner:              runner,
		explorer:               explorer,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

// JobNames returns the registered job names, sorted.
func (l *SimpleJobLauncher) JobNames() []string {
	names := make([]string, 0, len(l.jobs))
	for name := range l.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *SimpleJobLauncher) registerCancelFunc(jobName string, cancel context.CancelFunc) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, running := l.activeJobCancellations[jobName]; running {
		return false
	}
	l.activeJobCancellations[jobName] = cancel
	return true
}

func (l *SimpleJobLauncher) unregisterCancelFunc(jobName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.activeJobCancellations, jobName)
}

// GetCancelFunc retrieves the cancel function of the running launch of jobName.
func (l *SimpleJobLauncher) GetCancelFunc(jobName string) (context.CancelFunc, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cancel, ok := l.activeJobCancellations[jobName]
	return cancel, ok
}

// Launch runs the named job synchronously.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string) (*model.JobExecution, error) {
	job, ok := l.jobs[jobName]
	if !ok {
		return nil, exception.NewConfigurationErrorf("job_launcher", "job '%s' is not registered", jobName)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !l.registerCancelFunc(jobName, cancel) {
		return nil, exception.NewBatchErrorf("job_launcher", "job '%s' is already running; concurrent launches of the same job are not allowed", jobName)
	}
	defer l.unregisterCancelFunc(jobName)

	logger.Infof("Launching Job '%s' using JobLauncher.", jobName)
	jobExecution, err := l.jobRunner.Run(jobCtx, job)
	if l.explorer != nil && jobExecution != nil {
		l.explorer.record(jobExecution)
	}
	return jobExecution, err
}

// RunAll launches jobNames in parallel and returns one result per name, in argument order.
// Jobs share no state; the failure of one does not cancel the others.
func (l *SimpleJobLauncher) RunAll(ctx context.Context, jobNames ...string) []LaunchResult {
	results := make([]LaunchResult, len(jobNames))
	// A failed job does not cancel the others, so every goroutine reports through results.
	var g errgroup.Group
	for i, name := range jobNames {
		g.Go(func() error {
			je, err := l.Launch(ctx, name)
			results[i] = LaunchResult{JobName: name, Execution: je, Err: err, Outcome: je.Outcome(err)}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Infof("JobLauncher: %d job(s) finished, %d failed.", len(results), failed)
	return results
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)
