// Package app assembles the employee import application from the batch modules.
package app

import (
	"context"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	gormmysql "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/mysql"
	gormpostgres "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/postgres"
	gormsqlite "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/sqldb"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	usecase "github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	coremetrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	inframetrics "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/tracing"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// LaunchParams defines the dependencies for RegisterLaunch.
type LaunchParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Launcher   *usecase.SimpleJobLauncher
	Config     *config.Config
	AppCtx     context.Context `name:"appCtx"`
}

// RegisterLaunch runs the configured job once the application has started and shuts the
// application down when it ends. A failed job exits with status 1.
func RegisterLaunch(p LaunchParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := MigrateSink(p.AppCtx, p.Config); err != nil {
				return err
			}
			go launch(p)
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

func launch(p LaunchParams) {
	exitCode := 0
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic recovered in job execution: %v", r)
			exitCode = 1
		}
		if err := p.Shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
			logger.Errorf("Failed to shutdown application: %v", err)
		}
	}()

	for _, result := range p.Launcher.RunAll(p.AppCtx, p.Config.Chunkbatch.Job.Name) {
		exitCode = max(exitCode, logOutcome(result))
	}
}

// logOutcome reports the outcome of one launch and returns its exit code.
func logOutcome(result usecase.LaunchResult) int {
	outcome := result.Outcome
	if outcome.IsFailed() {
		logger.Errorf("Job '%s' %s: %v (%s)", result.JobName, outcome.Status, outcome.Cause, outcome.Counters)
		return 1
	}
	logger.Infof("Job '%s' (Execution ID: %s) %s: %s", result.JobName, result.Execution.ID, outcome.Status, outcome.Counters)
	return 0
}

// Options returns the fx options of the employee import application.
func Options(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig) []fx.Option {
	return []fx.Option{
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
		),
		logger.Module,
		config.Module,
		coremetrics.Module,
		inframetrics.Module,
		logging.Module,
		tracing.Module,
		runner.Module,
		usecase.Module,

		storage.Module,
		local.Module,
		gcs.Module,

		gormadapter.Module,
		gormmysql.Module,
		gormpostgres.Module,
		gormsqlite.Module,
		sqldb.Module,

		fx.Provide(usecase.AsJob(NewEmployeeJob)),
		fx.Invoke(RegisterLaunch),
	}
}
