package usecase

import (
	"context"

	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DefaultJobOperator is the default implementation of the JobOperator interface.
type DefaultJobOperator struct {
	jobLauncher *SimpleJobLauncher
}

// Verify that DefaultJobOperator implements the JobOperator interface.
var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator creates a new instance of DefaultJobOperator.
func NewDefaultJobOperator(launcher *SimpleJobLauncher) *DefaultJobOperator {
	return &DefaultJobOperator{jobLauncher: launcher}
}

// Stop cancels the running launch of jobName.
func (o *DefaultJobOperator) Stop(ctx context.Context, jobName string) error {
	cancel, ok := o.jobLauncher.GetCancelFunc(jobName)
	if !ok {
		return exception.NewBatchErrorf("job_operator", "job '%s' is not running", jobName)
	}
	logger.Infof("JobOperator: stop requested for Job '%s'.", jobName)
	cancel()
	return nil
}
