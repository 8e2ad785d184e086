package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DecorateMetricRecorder replaces the no-op recorder with the enabled backends.
// Prometheus metrics are pushed to the Pushgateway, if configured, when the application stops.
// With metrics.async_buffer_size set, the result is wrapped in an AsyncMetricRecorder.
func DecorateMetricRecorder(base metrics.MetricRecorder, cfg *config.MetricsConfig, lc fx.Lifecycle) (metrics.MetricRecorder, error) {
	var recorders []metrics.MetricRecorder

	if cfg.Prometheus.Enabled {
		prom := NewPrometheusRecorder()
		if url := cfg.Prometheus.PushGatewayURL; url != "" {
			jobName := cfg.Prometheus.PushJobName
			lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
				if err := prom.Push(ctx, url, jobName); err != nil {
					logger.Errorf("Metrics: failed to push to Pushgateway %s: %v", url, err)
				}
				return nil
			}})
		}
		recorders = append(recorders, prom)
		logger.Infof("Metrics: Prometheus recorder enabled.")
	}

	if cfg.Otel.Enabled {
		mp, err := NewMeterProvider(context.Background(), cfg.Otel)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
		rec, err := NewOpenTelemetryRecorder(mp)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, rec)
		logger.Infof("Metrics: OpenTelemetry recorder enabled (protocol=%s).", cfg.Otel.Protocol)
	}

	var recorder metrics.MetricRecorder
	switch len(recorders) {
	case 0:
		return base, nil
	case 1:
		recorder = recorders[0]
	default:
		recorder = NewMultiRecorder(recorders...)
	}

	if cfg.AsyncBufferSize > 0 {
		async := NewAsyncMetricRecorder(cfg.AsyncBufferSize, recorder)
		// Appended after the push hook, so it runs first on stop and the push sees every event.
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			async.Close()
			return nil
		}})
		recorder = async
	}
	return recorder, nil
}

// DecorateTracer replaces the no-op tracer with an OpenTelemetry tracer when enabled.
func DecorateTracer(base metrics.Tracer, cfg *config.MetricsConfig, lc fx.Lifecycle) (metrics.Tracer, error) {
	if !cfg.Otel.Enabled {
		return base, nil
	}
	tp, err := NewTracerProvider(context.Background(), cfg.Otel)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: tp.Shutdown})
	logger.Infof("Tracing: OpenTelemetry tracer enabled (protocol=%s).", cfg.Otel.Protocol)
	return NewOpenTelemetryTracer(tp), nil
}

// Module decorates the core no-op MetricRecorder and Tracer with the configured backends.
var Module = fx.Options(
	fx.Decorate(DecorateMetricRecorder),
	fx.Decorate(DecorateTracer),
)
