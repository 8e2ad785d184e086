package tracing

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	listener "github.com/tigerroll/chunkbatch/pkg/batch/listener"
)

// Module contributes the tracing event listener to the step listener group.
// The Tracer itself comes from core/metrics, optionally decorated by infrastructure/metrics.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func(tracer metrics.Tracer) interface{} { return NewTracingEventListener(tracer) },
		fx.ResultTags(listener.StepListenerGroup),
	)),
)
