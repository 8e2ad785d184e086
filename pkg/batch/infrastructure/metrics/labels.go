package metrics

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// jobNameFrom returns the job name of the StepExecution the engine published in ctx.
// Steps executed outside a job report an empty job name.
func jobNameFrom(ctx context.Context) string {
	if se := port.GetStepExecutionFromContext(ctx); se != nil && se.JobExecution != nil {
		return se.JobExecution.JobName
	}
	return ""
}
