package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// MultiRecorder forwards every call to each of its recorders in order.
type MultiRecorder struct {
	recorders []metrics.MetricRecorder
}

// NewMultiRecorder creates a MultiRecorder.
func NewMultiRecorder(recorders ...metrics.MetricRecorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

func (m *MultiRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	for _, r := range m.recorders {
		r.RecordJobStart(ctx, execution)
	}
}

func (m *MultiRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	for _, r := range m.recorders {
		r.RecordJobEnd(ctx, execution)
	}
}

func (m *MultiRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	for _, r := range m.recorders {
		r.RecordStepStart(ctx, execution)
	}
}

func (m *MultiRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	for _, r := range m.recorders {
		r.RecordStepEnd(ctx, execution)
	}
}

func (m *MultiRecorder) RecordItemRead(ctx context.Context, stepName string) {
	for _, r := range m.recorders {
		r.RecordItemRead(ctx, stepName)
	}
}

func (m *MultiRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	for _, r := range m.recorders {
		r.RecordItemProcess(ctx, stepName)
	}
}

func (m *MultiRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	for _, r := range m.recorders {
		r.RecordItemSkip(ctx, stepName, reason)
	}
}

func (m *MultiRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	for _, r := range m.recorders {
		r.RecordItemRetry(ctx, stepName, reason)
	}
}

func (m *MultiRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	for _, r := range m.recorders {
		r.RecordChunkCommit(ctx, stepName, count)
	}
}

func (m *MultiRecorder) RecordChunkRollback(ctx context.Context, stepName string, count int) {
	for _, r := range m.recorders {
		r.RecordChunkRollback(ctx, stepName, count)
	}
}

func (m *MultiRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	for _, r := range m.recorders {
		r.RecordDuration(ctx, name, duration, tags)
	}
}

var _ metrics.MetricRecorder = (*MultiRecorder)(nil)
