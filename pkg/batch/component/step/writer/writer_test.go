package writer_test

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/sqldb"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	localstorage "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/writer"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"
)

type person struct {
	ID   int
	Name string
}

type personRow struct {
	ID   int32  `parquet:"name=id, type=INT32"`
	Name string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func toRow(p person) personRow { return personRow{ID: int32(p.ID), Name: p.Name} }

func personParams(p person) map[string]interface{} {
	return map[string]interface{}{"id": p.ID, "name": p.Name}
}

func TestNamedSQLWriter_CompilesPlaceholders(t *testing.T) {
	q := "INSERT INTO people (id, name, note) VALUES (:id, :name, 'a:b') RETURNING id::text"

	w, err := writer.NewNamedSQLWriter[person]("people", q, sqldb.BindQuestion, personParams)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO people (id, name, note) VALUES (?, ?, 'a:b') RETURNING id::text", w.Query())

	w, err = writer.NewNamedSQLWriter[person]("people", q, sqldb.BindDollar, personParams)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO people (id, name, note) VALUES ($1, $2, 'a:b') RETURNING id::text", w.Query())
}

func TestNamedSQLWriter_RejectsBadStatements(t *testing.T) {
	for _, q := range []string{
		"INSERT INTO people VALUES (1)",
		"INSERT INTO people VALUES (: id)",
		"INSERT INTO people VALUES (:id, 'open)",
	} {
		_, err := writer.NewNamedSQLWriter[person]("people", q, sqldb.BindQuestion, personParams)
		assert.True(t, exception.IsConfigurationError(err), q)
	}
}

func TestNamedSQLWriter_ExecutesOneStatementPerItem(t *testing.T) {
	w, err := writer.NewNamedSQLWriter[person]("people", "INSERT INTO people (name, id) VALUES (:name, :id)", sqldb.BindQuestion, personParams)
	require.NoError(t, err)

	mtx := new(test.MockTx)
	mtx.On("Exec", mock.Anything, "INSERT INTO people (name, id) VALUES (?, ?)", []interface{}{"ada", 1}).Return(int64(1), nil).Once()
	mtx.On("Exec", mock.Anything, "INSERT INTO people (name, id) VALUES (?, ?)", []interface{}{"grace", 2}).Return(int64(1), nil).Once()

	require.NoError(t, w.Write(context.Background(), mtx, []person{{1, "ada"}, {2, "grace"}}))
	mtx.AssertExpectations(t)
}

func TestNamedSQLWriter_ExecFailureIsSinkError(t *testing.T) {
	w, err := writer.NewNamedSQLWriter[person]("people", "INSERT INTO people (id) VALUES (:id)", sqldb.BindQuestion, personParams)
	require.NoError(t, err)

	mtx := new(test.MockTx)
	mtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), errors.New("duplicate key"))

	err = w.Write(context.Background(), mtx, []person{{1, "ada"}})
	assert.True(t, exception.IsSinkError(err))
}

func TestNamedSQLWriter_MissingParameterIsSinkError(t *testing.T) {
	w, err := writer.NewNamedSQLWriter[person]("people", "INSERT INTO people (id) VALUES (:empId)", sqldb.BindQuestion, personParams)
	require.NoError(t, err)
	err = w.Write(context.Background(), new(test.MockTx), []person{{1, "ada"}})
	assert.True(t, exception.IsSinkError(err))
	assert.Contains(t, err.Error(), "empId")
}

func TestGormWriter_InsertsInBulkBatches(t *testing.T) {
	w := writer.NewGormWriter[person]("people", "people", writer.WithBulkSize(2))
	mtx := new(test.MockEntityTx)
	var sizes []int
	mtx.On("ExecuteUpdate", mock.Anything, mock.Anything, "CREATE", "people", map[string]interface{}(nil)).
		Run(func(args mock.Arguments) {
			sizes = append(sizes, len(*args.Get(1).(*[]person)))
		}).
		Return(int64(2), nil)

	require.NoError(t, w.Write(context.Background(), mtx, []person{{1, "a"}, {2, "b"}, {3, "c"}}))
	assert.Equal(t, []int{2, 1}, sizes)
}

func TestGormWriter_Upserts(t *testing.T) {
	w := writer.NewGormWriter[person]("people", "people", writer.WithUpsert([]string{"id"}, []string{"name"}))
	mtx := new(test.MockEntityTx)
	mtx.On("ExecuteUpsert", mock.Anything, mock.Anything, "people", []string{"id"}, []string{"name"}).Return(int64(1), nil)

	require.NoError(t, w.Write(context.Background(), mtx, []person{{1, "a"}}))
	mtx.AssertExpectations(t)
}

func TestGormWriter_Failures(t *testing.T) {
	w := writer.NewGormWriter[person]("people", "people")

	err := w.Write(context.Background(), new(test.MockTx), []person{{1, "a"}})
	assert.True(t, exception.IsSinkError(err))

	mtx := new(test.MockEntityTx)
	mtx.On("ExecuteUpdate", mock.Anything, mock.Anything, "CREATE", "people", mock.Anything).Return(int64(0), errors.New("locked"))
	err = w.Write(context.Background(), mtx, []person{{1, "a"}})
	assert.True(t, exception.IsSinkError(err))

	assert.NoError(t, w.Write(context.Background(), mtx, nil))
}

func newLocalResolver(t *testing.T) (storage.StorageConnectionResolver, string) {
	t.Helper()
	base := t.TempDir()
	section := map[string]interface{}{
		"out": map[string]interface{}{"type": "local", "base_dir": base},
	}
	return storage.NewConnectionResolver([]storage.StorageProvider{localstorage.NewLocalProvider(section)}, section), base
}

func readParquet(t *testing.T, file string) []personRow {
	t.Helper()
	fr, err := local.NewLocalFileReader(file)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(personRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]personRow, int(pr.GetNumRows()))
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestParquetWriter_OnePartPerChunk(t *testing.T) {
	resolver, base := newLocalResolver(t)
	w, err := writer.NewParquetWriter[person, personRow]("export", writer.ParquetWriterConfig{
		StorageRef:    "out",
		OutputBaseDir: "exports/people",
	}, resolver, toRow)
	require.NoError(t, err)

	ctx := context.Background()
	ec := model.NewExecutionContext()
	require.NoError(t, w.Open(ctx, ec))

	tm := tx.NewResourcelessTransactionManager()
	for _, chunk := range [][]person{{{1, "ada"}, {2, "grace"}}, {{3, "linus"}}} {
		t1, err := tm.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, w.Write(ctx, t1, chunk))
		require.NoError(t, tm.Commit(t1))
	}
	require.NoError(t, w.Close(ctx))

	files, err := filepath.Glob(filepath.Join(base, "exports", "people", "part-*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 2)
	sort.Strings(files)

	assert.Equal(t, []personRow{{1, "ada"}, {2, "grace"}}, readParquet(t, files[0]))
	assert.Equal(t, []personRow{{3, "linus"}}, readParquet(t, files[1]))

	parts, _ := ec.GetInt("export.partCount")
	assert.Equal(t, 2, parts)
}

func TestParquetWriter_Configuration(t *testing.T) {
	resolver, _ := newLocalResolver(t)

	_, err := writer.NewParquetWriter[person, personRow]("export", writer.ParquetWriterConfig{}, resolver, toRow)
	assert.True(t, exception.IsConfigurationError(err))

	_, err = writer.NewParquetWriter[person, personRow]("export", writer.ParquetWriterConfig{StorageRef: "out", CompressionType: "LZMA"}, resolver, toRow)
	assert.True(t, exception.IsConfigurationError(err))

	w, err := writer.NewParquetWriter[person, personRow]("export", writer.ParquetWriterConfig{StorageRef: "missing"}, resolver, toRow)
	require.NoError(t, err)
	assert.True(t, exception.IsSinkError(w.Open(context.Background(), nil)))
	assert.True(t, exception.IsSinkError(w.Write(context.Background(), nil, []person{{1, "a"}})))
}
