package runner

import (
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"go.uber.org/fx"
)

// SimpleJobRunnerParams defines dependencies for SimpleJobRunner.
type SimpleJobRunnerParams struct {
	fx.In
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// NewJobRunner provides the concrete JobRunner implementation (SimpleJobRunner).
func NewJobRunner(p SimpleJobRunnerParams) port.JobRunner {
	return NewSimpleJobRunner(p.MetricRecorder, p.Tracer)
}

// Module provides the JobRunner implementation.
var Module = fx.Options(
	fx.Provide(NewJobRunner),
)
