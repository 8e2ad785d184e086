package usecase

import (
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"go.uber.org/fx"
)

// JobGroup is the Fx group tag under which applications provide their port.Job values.
const JobGroup = `group:"jobs"`

// Module is the Fx module for JobLauncher, JobOperator, and JobExplorer.
var Module = fx.Options(
	fx.Provide(NewSimpleJobExplorer),
	fx.Provide(func(e *SimpleJobExplorer) JobExplorer { return e }),

	fx.Provide(fx.Annotate(
		NewSimpleJobLauncher,
		fx.ParamTags(JobGroup),
	)),
	fx.Provide(func(l *SimpleJobLauncher) JobLauncher { return l }),

	fx.Provide(NewDefaultJobOperator),
	fx.Provide(func(o *DefaultJobOperator) JobOperator { return o }),
)

// AsJob annotates a constructor so its port.Job result joins JobGroup.
func AsJob(constructor interface{}) interface{} {
	return fx.Annotate(constructor, fx.As(new(port.Job)), fx.ResultTags(JobGroup))
}
