package app

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/internal/employee"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/sqldb"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/writer"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	listener "github.com/tigerroll/chunkbatch/pkg/batch/listener"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// StepName is the name of the single step of the employee job.
const StepName = "EmpImportStep1"

// JobParams defines the dependencies for NewEmployeeJob.
type JobParams struct {
	fx.In
	Config         *config.Config
	Storage        storage.StorageConnectionResolver
	GormResolver   *gormadapter.GormDBConnectionResolver
	SQLResolver    *sqldb.SQLDBConnectionResolver
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	Listeners      listener.Listeners
}

// NewEmployeeJob builds the employee import job described by the "job" section: a CSV
// source, the employee processor, and the configured sink.
func NewEmployeeJob(p JobParams) (*runner.SimpleJob, error) {
	jobCfg := p.Config.Chunkbatch.Job
	if jobCfg.Name == "" {
		return nil, exception.NewConfigurationErrorf("app", "job.name is required")
	}

	w, txManager, err := newSink(p)
	if err != nil {
		return nil, err
	}
	opts, err := stepOptions(&p.Config.Chunkbatch.Batch)
	if err != nil {
		return nil, err
	}
	opts.MetricRecorder = p.MetricRecorder
	opts.Tracer = p.Tracer

	step := item.NewChunkStep[employee.Employee, employee.Employee](
		StepName,
		reader.NewCSVReader[employee.Employee]("employeeReader", newOpener(p.Storage, jobCfg.Source)),
		employee.NewProcessor(),
		w,
		txManager,
		opts,
	)
	for _, l := range p.Listeners.Step {
		step.RegisterListener(l)
	}

	job := runner.NewSimpleJob(jobCfg.Name, step)
	for _, l := range p.Listeners.Job {
		job.RegisterListener(l)
	}
	logger.Infof("Job '%s' assembled: source=%s sink=%s.", jobCfg.Name, jobCfg.Source.Path, jobCfg.Sink.Type)
	return job, nil
}

func newOpener(resolver storage.StorageConnectionResolver, src config.SourceConfig) reader.Opener {
	if src.Storage == "" {
		return reader.FileOpener(src.Path)
	}
	return reader.StorageOpener(resolver, src.Storage, "", src.Path)
}

func newSink(p JobParams) (port.ItemWriter[employee.Employee], tx.TransactionManager, error) {
	sink := p.Config.Chunkbatch.Job.Sink
	switch sink.Type {
	case config.SinkTypeSQL:
		dbCfg, err := database.ConnectionConfig(p.Config.Chunkbatch.AdaptorConfigs, sink.Database)
		if err != nil {
			return nil, nil, exception.NewConfigurationError("app", fmt.Sprintf("sink database '%s'", sink.Database), err)
		}
		w, err := writer.NewNamedSQLWriter[employee.Employee]("employeeWriter", employee.InsertSQL, sqldb.BindStyleFor(dbCfg.Type), employee.Params)
		if err != nil {
			return nil, nil, err
		}
		return w, sqldb.NewSQLTransactionManager(p.SQLResolver, sink.Database), nil

	case config.SinkTypeGorm:
		table := sink.Table
		if table == "" {
			table = employee.TableName
		}
		w := writer.NewGormWriter[employee.Employee]("employeeWriter", table)
		return w, gormadapter.NewGormTransactionManager(p.GormResolver, sink.Database), nil

	case config.SinkTypeParquet:
		w, err := writer.NewParquetWriter[employee.Employee, employee.Row]("employeeWriter", writer.ParquetWriterConfig{
			StorageRef:      sink.Storage,
			OutputBaseDir:   sink.Path,
			CompressionType: sink.Compression,
		}, p.Storage, employee.ToRow)
		if err != nil {
			return nil, nil, err
		}
		return w, tx.NewResourcelessTransactionManager(), nil

	default:
		return nil, nil, exception.NewConfigurationErrorf("app", "unknown sink type '%s'", sink.Type)
	}
}

func stepOptions(cfg *config.BatchConfig) (item.StepOptions, error) {
	skipPolicy, err := skip.NewDefaultSkipPolicyFactory().Create(cfg.ItemSkip.SkipLimit, cfg.ItemSkip.SkippableExceptions)
	if err != nil {
		return item.StepOptions{}, err
	}
	retryPolicy, err := retry.NewDefaultRetryPolicyFactory().Create(
		cfg.ItemRetry.MaxAttempts, cfg.ItemRetry.InitialInterval, cfg.ItemRetry.Multiplier, cfg.ItemRetry.RetryableExceptions)
	if err != nil {
		return item.StepOptions{}, err
	}
	return item.StepOptions{
		ChunkSize:      cfg.ChunkSize,
		SkipPolicy:     skipPolicy,
		RetryPolicy:    retryPolicy,
		IsolationLevel: cfg.IsolationLevel,
	}, nil
}
