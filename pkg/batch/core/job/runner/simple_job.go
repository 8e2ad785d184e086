package runner

import (
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// SimpleJob is a named, ordered list of steps.
type SimpleJob struct {
	name         string
	steps        []port.Step
	jobListeners []port.JobExecutionListener
}

// Verify that SimpleJob implements the port.Job interface.
var _ port.Job = (*SimpleJob)(nil)

// NewSimpleJob creates a job running steps in the given order.
func NewSimpleJob(name string, steps ...port.Step) *SimpleJob {
	return &SimpleJob{name: name, steps: steps}
}

// JobName returns the job name.
func (j *SimpleJob) JobName() string {
	return j.name
}

// Steps returns the steps in execution order.
func (j *SimpleJob) Steps() []port.Step {
	return j.steps
}

// RegisterListener adds a JobExecutionListener.
func (j *SimpleJob) RegisterListener(l port.JobExecutionListener) {
	j.jobListeners = append(j.jobListeners, l)
}

// JobListeners returns the registered JobExecutionListeners.
func (j *SimpleJob) JobListeners() []port.JobExecutionListener {
	return j.jobListeners
}
