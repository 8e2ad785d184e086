// Package logging provides listeners that write job, step, chunk and item events to the
// framework logger.
package logging

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() port.JobExecutionListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s", jobExecution.JobName, jobExecution.ID)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, %s", jobExecution.JobName, jobExecution.Status, jobExecution.Counters())
	for _, f := range jobExecution.Failures {
		logger.Errorf("JobExecutionListener: AfterJob - JobName: %s, Failure: %s", jobExecution.JobName, f)
	}
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() port.StepExecutionListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, %s", stepExecution.StepName, stepExecution.Status, stepExecution.Counters())
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() port.ChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution, size int) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s, Size: %d", stepExecution.StepName, size)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution, size int) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Write: %d, Commits: %d", stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.CommitCount)
}

func (l *LoggingChunkListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, size int, err error) {
	logger.Errorf("ChunkListener: AfterChunkError - StepName: %s, Size: %d, rolled back: %v", stepExecution.StepName, size, err)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)

// --- Item Listeners ---

// LoggingItemListener logs read, process and write errors, skips, and retries.
type LoggingItemListener struct{}

func NewLoggingItemListener() *LoggingItemListener {
	return &LoggingItemListener{}
}

func (l *LoggingItemListener) OnReadError(ctx context.Context, err error) {
	logger.Errorf("ItemReadListener: OnReadError - %v", err)
}

func (l *LoggingItemListener) OnProcessError(ctx context.Context, item interface{}, err error) {
	logger.Errorf("ItemProcessListener: OnProcessError - Item: %+v, Error: %v", item, err)
}

func (l *LoggingItemListener) OnWriteError(ctx context.Context, items []interface{}, err error) {
	logger.Errorf("ItemWriteListener: OnWriteError - Items count: %d, Error: %v", len(items), err)
}

func (l *LoggingItemListener) OnSkipInRead(ctx context.Context, err error) {
	logger.Warnf("SkipListener: OnSkipInRead - Skipping record due to error: %v", err)
}

func (l *LoggingItemListener) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	if port.IsSkip(err) {
		logger.Debugf("SkipListener: OnSkipInProcess - Filtered item: %+v", item)
		return
	}
	logger.Warnf("SkipListener: OnSkipInProcess - Skipping item: %+v, Error: %v", item, err)
}

func (l *LoggingItemListener) OnRetryProcess(ctx context.Context, item interface{}, attempt int, err error) {
	logger.Warnf("RetryItemListener: OnRetryProcess - Retrying item (attempt %d): %+v, Error: %v", attempt, item, err)
}

var (
	_ port.ItemReadListener    = (*LoggingItemListener)(nil)
	_ port.ItemProcessListener = (*LoggingItemListener)(nil)
	_ port.ItemWriteListener   = (*LoggingItemListener)(nil)
	_ port.SkipListener        = (*LoggingItemListener)(nil)
	_ port.RetryItemListener   = (*LoggingItemListener)(nil)
)
