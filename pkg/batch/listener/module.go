// Package listener collects the listeners an application attaches to its jobs and steps.
// Listener implementations contribute to the fx value groups declared here.
package listener

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

const (
	// JobListenerGroup is the fx group of port.JobExecutionListener values.
	JobListenerGroup = `group:"jobListeners"`
	// StepListenerGroup is the fx group of step-level listeners. Each value implements one
	// or more of the step, chunk, item and skip listener interfaces.
	StepListenerGroup = `group:"stepListeners"`
)

// Listeners receives every contributed listener from Fx.
type Listeners struct {
	fx.In
	Job  []port.JobExecutionListener `group:"jobListeners"`
	Step []interface{}               `group:"stepListeners"`
}
