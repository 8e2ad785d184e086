package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes fx lifecycle events into this package's leveled logger.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		Debugf("fx: OnStart hook executing: %s", shortFuncName(e.FunctionName))
	case *fxevent.OnStartExecuted:
		logHookResult("OnStart", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuting:
		Debugf("fx: OnStop hook executing: %s", shortFuncName(e.FunctionName))
	case *fxevent.OnStopExecuted:
		logHookResult("OnStop", e.FunctionName, e.Err)
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("fx: supply of %s failed: %v", e.TypeName, e.Err)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("fx: provide failed: %v", e.Err)
			return
		}
		for _, t := range e.OutputTypeNames {
			Debugf("fx: provided %s", t)
		}
	case *fxevent.Invoking:
		Debugf("fx: invoking %s", shortFuncName(e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("fx: invoke of %s failed: %v", e.FunctionName, e.Err)
		}
	case *fxevent.Stopping:
		Infof("fx: received signal %s, stopping.", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("fx: stop failed: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("fx: rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
		} else {
			Debugf("fx: application started.")
		}
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("fx: custom logger initialization failed: %v", e.Err)
		}
	}
}

func logHookResult(kind, funcName string, err error) {
	if err != nil {
		Errorf("fx: %s hook %s failed: %v", kind, shortFuncName(funcName), err)
		return
	}
	Debugf("fx: %s hook executed: %s", kind, shortFuncName(funcName))
}

// shortFuncName strips the ".funcN" suffix fx reports for closures.
func shortFuncName(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}
