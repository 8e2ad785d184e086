package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/fx/fxtest"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

func newRunningStep(t *testing.T) (context.Context, *model.JobExecution, *model.StepExecution) {
	t.Helper()
	je := model.NewJobExecution("importJob")
	se := model.NewStepExecution("importStep")
	je.AddStepExecution(se)
	je.MarkAsStarted()
	require.NoError(t, se.MarkAsStarted())
	return port.GetContextWithStepExecution(context.Background(), se), je, se
}

func TestPrometheusRecorder_Counters(t *testing.T) {
	r := NewPrometheusRecorder()
	ctx, je, se := newRunningStep(t)

	for i := 0; i < 5; i++ {
		r.RecordItemRead(ctx, "importStep")
	}
	r.RecordItemProcess(ctx, "importStep")
	r.RecordItemSkip(ctx, "importStep", "filter")
	r.RecordItemSkip(ctx, "importStep", "SourceError")
	r.RecordItemRetry(ctx, "importStep", "ProcessingError")
	r.RecordChunkCommit(ctx, "importStep", 3)
	r.RecordChunkCommit(ctx, "importStep", 2)
	r.RecordChunkRollback(ctx, "importStep", 2)
	r.RecordDuration(ctx, "chunk_commit", 20*time.Millisecond, map[string]string{"step": "importStep"})

	require.NoError(t, se.MarkAsCompleted())
	je.MarkAsCompleted()
	r.RecordStepEnd(ctx, se)
	r.RecordJobEnd(ctx, je)

	assert.Equal(t, 5.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("importJob", "importStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepProcessCount.WithLabelValues("importJob", "importStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemSkipCounter.WithLabelValues("importJob", "importStep", "filter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemSkipCounter.WithLabelValues("importJob", "importStep", "SourceError")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemRetryCounter.WithLabelValues("importJob", "importStep", "ProcessingError")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepCommitCount.WithLabelValues("importJob", "importStep")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.stepWriteCount.WithLabelValues("importJob", "importStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepRollbackCount.WithLabelValues("importJob", "importStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepStatusCounter.WithLabelValues("importJob", "importStep", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("importJob", "COMPLETED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.operationDurationSeconds))
}

func TestPrometheusRecorder_StepOutsideJob(t *testing.T) {
	r := NewPrometheusRecorder()
	se := model.NewStepExecution("standalone")
	ctx := port.GetContextWithStepExecution(context.Background(), se)

	r.RecordItemRead(ctx, "standalone")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("", "standalone")))
}

type pushCapture struct {
	mu     sync.Mutex
	method string
	path   string
}

func newPushGateway(t *testing.T) (*httptest.Server, *pushCapture) {
	t.Helper()
	capture := &pushCapture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		capture.mu.Lock()
		capture.method, capture.path = req.Method, req.URL.Path
		capture.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, capture
}

func TestPrometheusRecorder_Push(t *testing.T) {
	srv, capture := newPushGateway(t)
	r := NewPrometheusRecorder()

	require.NoError(t, r.Push(context.Background(), srv.URL, "nightly"))

	assert.Equal(t, http.MethodPut, capture.method)
	assert.Equal(t, "/metrics/job/nightly", capture.path)
}

func TestDecorateMetricRecorder(t *testing.T) {
	base := metrics.NewNoOpMetricRecorder()

	t.Run("disabled keeps the base recorder", func(t *testing.T) {
		lc := fxtest.NewLifecycle(t)
		got, err := DecorateMetricRecorder(base, &config.MetricsConfig{}, lc)
		require.NoError(t, err)
		assert.Same(t, base, got)
	})

	t.Run("prometheus pushes on stop", func(t *testing.T) {
		srv, capture := newPushGateway(t)
		lc := fxtest.NewLifecycle(t)
		cfg := &config.MetricsConfig{Prometheus: config.PrometheusConfig{
			Enabled: true, PushGatewayURL: srv.URL, PushJobName: "chunkbatch",
		}}

		got, err := DecorateMetricRecorder(base, cfg, lc)
		require.NoError(t, err)
		assert.IsType(t, &PrometheusRecorder{}, got)

		lc.RequireStart().RequireStop()
		assert.Equal(t, "/metrics/job/chunkbatch", capture.path)
	})
}

func TestDecorateTracer_Disabled(t *testing.T) {
	base := metrics.NewNoOpTracer()
	got, err := DecorateTracer(base, &config.MetricsConfig{}, fxtest.NewLifecycle(t))
	require.NoError(t, err)
	assert.Same(t, base, got)
}

func TestNewTracerProvider_UnknownProtocol(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), config.OtelConfig{Protocol: "udp"})
	assert.Error(t, err)
	_, err = NewMeterProvider(context.Background(), config.OtelConfig{Protocol: "udp"})
	assert.Error(t, err)
}

func TestOpenTelemetryTracer_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(tp)

	je := model.NewJobExecution("importJob")
	se := model.NewStepExecution("importStep")
	je.AddStepExecution(se)
	je.MarkAsStarted()
	require.NoError(t, se.MarkAsStarted())

	jobCtx, endJob := tracer.StartJobSpan(context.Background(), je)
	stepCtx, endStep := tracer.StartStepSpan(jobCtx, se)
	chunkCtx, endChunk := tracer.StartChunkSpan(stepCtx, se, 2)
	tracer.RecordEvent(chunkCtx, "skip", map[string]interface{}{"reason": "filter", "count": 1})
	endChunk()
	tracer.RecordError(stepCtx, "importStep", errors.New("sink down"))
	se.MarkAsFailed(errors.New("sink down"))
	endStep()
	je.MarkAsFailed(errors.New("sink down"))
	endJob()

	spans := sr.Ended()
	require.Len(t, spans, 3)
	chunk, step, job := spans[0], spans[1], spans[2]

	assert.Equal(t, "chunk", chunk.Name())
	assert.Equal(t, "step importStep", step.Name())
	assert.Equal(t, "job importJob", job.Name())
	assert.Equal(t, step.SpanContext().SpanID(), chunk.Parent().SpanID())
	assert.Equal(t, job.SpanContext().SpanID(), step.Parent().SpanID())

	require.Len(t, chunk.Events(), 1)
	assert.Equal(t, "skip", chunk.Events()[0].Name)
	require.Len(t, step.Events(), 1)
	assert.Equal(t, "exception", step.Events()[0].Name)

	assert.Equal(t, codes.Error, step.Status().Code)
	assert.Equal(t, "sink down", step.Status().Description)
	assert.Equal(t, codes.Error, job.Status().Code)
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestOpenTelemetryRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOpenTelemetryRecorder(mp)
	require.NoError(t, err)
	ctx, je, se := newRunningStep(t)

	r.RecordItemRead(ctx, "importStep")
	r.RecordItemRead(ctx, "importStep")
	r.RecordItemProcess(ctx, "importStep")
	r.RecordItemSkip(ctx, "importStep", "filter")
	r.RecordChunkCommit(ctx, "importStep", 2)
	r.RecordChunkRollback(ctx, "importStep", 1)
	require.NoError(t, se.MarkAsCompleted())
	je.MarkAsCompleted()
	r.RecordStepEnd(ctx, se)
	r.RecordJobEnd(ctx, je)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(2), sumOf(t, rm, "chunkbatch.items.read"))
	assert.Equal(t, int64(1), sumOf(t, rm, "chunkbatch.items.processed"))
	assert.Equal(t, int64(1), sumOf(t, rm, "chunkbatch.items.skipped"))
	assert.Equal(t, int64(2), sumOf(t, rm, "chunkbatch.items.written"))
	assert.Equal(t, int64(1), sumOf(t, rm, "chunkbatch.chunks.committed"))
	assert.Equal(t, int64(1), sumOf(t, rm, "chunkbatch.chunks.rolled_back"))
	assert.Equal(t, int64(1), sumOf(t, rm, "chunkbatch.steps"))
	assert.Equal(t, int64(1), sumOf(t, rm, "chunkbatch.jobs"))
}

func TestMultiRecorder_FansOut(t *testing.T) {
	a, b := NewPrometheusRecorder(), NewPrometheusRecorder()
	m := NewMultiRecorder(a, b)
	ctx, _, _ := newRunningStep(t)

	m.RecordItemRead(ctx, "importStep")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.stepReadCount.WithLabelValues("importJob", "importStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.stepReadCount.WithLabelValues("importJob", "importStep")))
}

func TestAsyncMetricRecorder_DrainsOnClose(t *testing.T) {
	prom := NewPrometheusRecorder()
	async := NewAsyncMetricRecorder(64, prom)
	ctx, cancel := context.WithCancel(context.Background())
	stepCtx, _, _ := newRunningStep(t)
	ctx = port.GetContextWithStepExecution(ctx, port.GetStepExecutionFromContext(stepCtx))

	for i := 0; i < 10; i++ {
		async.RecordItemRead(ctx, "importStep")
	}
	async.RecordChunkCommit(ctx, "importStep", 10)
	cancel()
	async.Close()
	async.Close()

	assert.Equal(t, 10.0, testutil.ToFloat64(prom.stepReadCount.WithLabelValues("importJob", "importStep")))
	assert.Equal(t, 10.0, testutil.ToFloat64(prom.stepWriteCount.WithLabelValues("importJob", "importStep")))
}
