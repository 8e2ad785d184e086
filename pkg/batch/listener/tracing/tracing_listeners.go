// Package tracing turns skip, retry and rollback notifications into events on the span the
// engine opened for the current step or chunk.
package tracing

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// TracingEventListener records span events through a metrics.Tracer.
type TracingEventListener struct {
	tracer metrics.Tracer
}

func NewTracingEventListener(tracer metrics.Tracer) *TracingEventListener {
	return &TracingEventListener{tracer: tracer}
}

func (l *TracingEventListener) OnSkipInRead(ctx context.Context, err error) {
	l.tracer.RecordEvent(ctx, "item.skip", map[string]interface{}{
		"phase":  "read",
		"reason": exception.KindOf(err),
		"error":  err.Error(),
	})
}

func (l *TracingEventListener) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	if port.IsSkip(err) {
		l.tracer.RecordEvent(ctx, "item.filter", nil)
		return
	}
	l.tracer.RecordEvent(ctx, "item.skip", map[string]interface{}{
		"phase":  "process",
		"reason": exception.KindOf(err),
		"error":  err.Error(),
	})
}

func (l *TracingEventListener) OnRetryProcess(ctx context.Context, item interface{}, attempt int, err error) {
	l.tracer.RecordEvent(ctx, "item.retry", map[string]interface{}{
		"attempt": attempt,
		"error":   err.Error(),
	})
}

func (l *TracingEventListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution, size int) {
}

func (l *TracingEventListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution, size int) {
	l.tracer.RecordEvent(ctx, "chunk.commit", map[string]interface{}{"size": size})
}

func (l *TracingEventListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, size int, err error) {
	l.tracer.RecordEvent(ctx, "chunk.rollback", map[string]interface{}{"size": size, "error": err.Error()})
}

var (
	_ port.SkipListener      = (*TracingEventListener)(nil)
	_ port.RetryItemListener = (*TracingEventListener)(nil)
	_ port.ChunkListener     = (*TracingEventListener)(nil)
)
