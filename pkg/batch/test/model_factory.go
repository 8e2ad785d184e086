package test

import (
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// NewTestJobExecution creates a JobExecution holding one fresh StepExecution per step name.
func NewTestJobExecution(jobName string, stepNames ...string) *model.JobExecution {
	je := model.NewJobExecution(jobName)
	for _, name := range stepNames {
		je.AddStepExecution(model.NewStepExecution(name))
	}
	return je
}

// NewTestStepExecution creates an IDLE StepExecution attached to a new JobExecution.
func NewTestStepExecution(stepName string) *model.StepExecution {
	je := NewTestJobExecution("testJob", stepName)
	return je.StepExecutions[0]
}

// NewTestExecutionContext creates an ExecutionContext for testing.
func NewTestExecutionContext(data map[string]interface{}) model.ExecutionContext {
	ec := model.NewExecutionContext()
	for k, v := range data {
		ec.Put(k, v)
	}
	return ec
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int {
	return &i
}
