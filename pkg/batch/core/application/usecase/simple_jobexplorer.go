package usecase

import (
	"context"
	"sort"
	"sync"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// SimpleJobExplorer keeps the finished JobExecutions of this process in memory.
type SimpleJobExplorer struct {
	mu        sync.RWMutex
	byID      map[string]*model.JobExecution
	byJobName map[string][]*model.JobExecution
}

// Verify that SimpleJobExplorer implements the JobExplorer interface.
var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates an empty SimpleJobExplorer.
func NewSimpleJobExplorer() *SimpleJobExplorer {
	return &SimpleJobExplorer{
		byID:      make(map[string]*model.JobExecution),
		byJobName: make(map[string][]*model.JobExecution),
	}
}

func (e *SimpleJobExplorer) record(je *model.JobExecution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[je.ID] = je
	e.byJobName[je.JobName] = append(e.byJobName[je.JobName], je)
}

// GetJobExecution retrieves a JobExecution by its ID.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	je, ok := e.byID[executionID]
	if !ok {
		return nil, exception.NewBatchErrorf("job_explorer", "JobExecution (ID: %s) not found", executionID)
	}
	return je, nil
}

// GetJobExecutions retrieves all JobExecutions of jobName, oldest first.
func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*model.JobExecution(nil), e.byJobName[jobName]...), nil
}

// GetLastJobExecution retrieves the latest JobExecution of jobName.
func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := e.byJobName[jobName]
	if len(list) == 0 {
		return nil, exception.NewBatchErrorf("job_explorer", "no JobExecution found for job '%s'", jobName)
	}
	return list[len(list)-1], nil
}

// GetJobNames retrieves the names of all jobs that have run, sorted.
func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.byJobName))
	for name := range e.byJobName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
