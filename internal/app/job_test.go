package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/internal/app"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	gormsqlite "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/sqldb"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

const employeesCSV = `empNumber,empName,jobTitle,mgrNumber,hireDate
7369,SMITH,clerk,7902,1980-12-17
7499,ALLEN,salesman,7698,1981-02-20
7839,KING,president,,1981-11-17
`

type fixture struct {
	cfg    *config.Config
	params app.JobParams
	dbPath string
	outDir string
}

func newFixture(t *testing.T, sinkType, csv string) *fixture {
	t.Helper()
	dir := t.TempDir()
	inDir := filepath.Join(dir, "in")
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(inDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "employees.csv"), []byte(csv), 0o644))
	dbPath := filepath.Join(dir, "app.db")

	cfg := config.NewConfig()
	cb := &cfg.Chunkbatch
	cb.Batch.ChunkSize = 2
	cb.Job = config.JobConfig{
		Name:    "chunkJob",
		Migrate: true,
		Source:  config.SourceConfig{Storage: "input", Path: "employees.csv"},
		Sink: config.SinkConfig{
			Type:     sinkType,
			Database: "app",
			Storage:  "output",
			Path:     "exports/employee",
		},
	}
	cb.AdaptorConfigs = map[string]interface{}{
		"app": map[string]interface{}{"type": "sqlite", "database": dbPath},
	}
	cb.StorageConfigs = map[string]interface{}{
		"input":  map[string]interface{}{"type": "local", "base_dir": inDir},
		"output": map[string]interface{}{"type": "local", "base_dir": outDir},
	}
	require.NoError(t, cfg.Validate())

	sqlResolver := &sqldb.SQLDBConnectionResolver{
		ConnectionResolver: database.NewConnectionResolver(sqldb.NewProviders(cb.AdaptorConfigs), cb.AdaptorConfigs),
	}
	gormResolver := &gormadapter.GormDBConnectionResolver{
		ConnectionResolver: database.NewConnectionResolver([]database.DBProvider{gormsqlite.NewProvider(cfg)}, cb.AdaptorConfigs),
	}
	t.Cleanup(func() {
		_ = sqlResolver.CloseAll()
		_ = gormResolver.CloseAll()
	})

	return &fixture{
		cfg: cfg,
		params: app.JobParams{
			Config:       cfg,
			Storage:      storage.NewConnectionResolver([]storage.StorageProvider{local.NewLocalProvider(cb.StorageConfigs)}, cb.StorageConfigs),
			GormResolver: gormResolver,
			SQLResolver:  sqlResolver,
		},
		dbPath: dbPath,
		outDir: outDir,
	}
}

func (f *fixture) run(t *testing.T) (*model.JobExecution, error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, app.MigrateSink(ctx, f.cfg))
	job, err := app.NewEmployeeJob(f.params)
	require.NoError(t, err)
	return runner.NewSimpleJobRunner(nil, nil).Run(ctx, job)
}

func (f *fixture) jobTitles(t *testing.T) map[int]string {
	t.Helper()
	conn, err := f.params.SQLResolver.ResolveDBConnection(context.Background(), "app")
	require.NoError(t, err)
	db, err := conn.GetSQLDB()
	require.NoError(t, err)

	rows, err := db.Query("SELECT empnumber, jobtitle FROM employee")
	require.NoError(t, err)
	defer rows.Close()
	titles := map[int]string{}
	for rows.Next() {
		var n int
		var title string
		require.NoError(t, rows.Scan(&n, &title))
		titles[n] = title
	}
	require.NoError(t, rows.Err())
	return titles
}

func TestEmployeeJob_SQLSink(t *testing.T) {
	f := newFixture(t, config.SinkTypeSQL, employeesCSV)

	je, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)

	c := je.Counters()
	assert.Equal(t, 3, c.Read)
	assert.Equal(t, 3, c.Written)
	assert.Equal(t, 2, c.CommittedChunks)
	assert.Equal(t, map[int]string{7369: "CLERK", 7499: "SALESMAN", 7839: "PRESIDENT"}, f.jobTitles(t))
}

func TestEmployeeJob_GormSink(t *testing.T) {
	f := newFixture(t, config.SinkTypeGorm, employeesCSV)

	je, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 3, je.Counters().Written)
	assert.Len(t, f.jobTitles(t), 3)
}

func TestEmployeeJob_ParquetSink(t *testing.T) {
	f := newFixture(t, config.SinkTypeParquet, employeesCSV)

	je, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 3, je.Counters().Written)

	parts, err := filepath.Glob(filepath.Join(f.outDir, "exports", "employee", "part-*.parquet"))
	require.NoError(t, err)
	assert.Len(t, parts, 2)
	_, err = os.Stat(f.dbPath)
	assert.True(t, os.IsNotExist(err), "parquet runs do not touch the database")
}

func TestEmployeeJob_NamelessEmployee(t *testing.T) {
	csv := employeesCSV + "7900,,clerk,7698,1981-12-03\n"

	f := newFixture(t, config.SinkTypeSQL, csv)
	je, err := f.run(t)
	require.Error(t, err)
	assert.True(t, exception.IsProcessingError(err))
	assert.Equal(t, model.BatchStatusFailed, je.Status)
	// The first chunk was committed before the failing record was read.
	assert.Len(t, f.jobTitles(t), 2)

	f = newFixture(t, config.SinkTypeSQL, csv)
	f.cfg.Chunkbatch.Batch.ItemSkip.SkipLimit = 1
	je, err = f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 1, je.Counters().SkipProcess)
	assert.Len(t, f.jobTitles(t), 3)
}

func TestEmployeeJob_MalformedRow(t *testing.T) {
	f := newFixture(t, config.SinkTypeSQL, employeesCSV+"8000,SCOTT,analyst,7566,not-a-date\n")
	f.cfg.Chunkbatch.Batch.ItemSkip.SkipLimit = 5

	je, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 1, je.Counters().SkipRead)
	assert.Len(t, f.jobTitles(t), 3)
}

func TestNewEmployeeJob_UnknownSink(t *testing.T) {
	f := newFixture(t, config.SinkTypeSQL, employeesCSV)
	f.cfg.Chunkbatch.Job.Sink.Type = "kafka"

	_, err := app.NewEmployeeJob(f.params)
	assert.True(t, exception.IsConfigurationError(err))
}
