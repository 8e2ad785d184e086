package logging

import (
	"go.uber.org/fx"

	listener "github.com/tigerroll/chunkbatch/pkg/batch/listener"
)

// Module provides the logging listeners to the job and step listener groups.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLoggingJobListener, fx.ResultTags(listener.JobListenerGroup))),
	fx.Provide(fx.Annotate(
		func() interface{} { return NewLoggingStepListener() },
		fx.ResultTags(listener.StepListenerGroup),
	)),
	fx.Provide(fx.Annotate(
		func() interface{} { return NewLoggingChunkListener() },
		fx.ResultTags(listener.StepListenerGroup),
	)),
	fx.Provide(fx.Annotate(
		func() interface{} { return NewLoggingItemListener() },
		fx.ResultTags(listener.StepListenerGroup),
	)),
)
