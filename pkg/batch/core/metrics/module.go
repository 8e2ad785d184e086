package metrics

import (
	"go.uber.org/fx"
)

// Module provides the no-op MetricRecorder and Tracer. Applications that enable a backend
// decorate these with fx.Decorate (see infrastructure/metrics.Module).
var Module = fx.Options(
	fx.Provide(NewNoOpMetricRecorder),
	fx.Provide(NewNoOpTracer),
)
