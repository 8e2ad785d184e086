package reader_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/sqldb"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

type staticResolver struct {
	conn database.DBConnection
	err  error
}

func (s staticResolver) ResolveDBConnection(context.Context, string) (database.DBConnection, error) {
	return s.conn, s.err
}

func (s staticResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return s.ResolveDBConnection(ctx, name)
}

type employeeRow struct {
	Number int
	Name   string
}

func mapEmployee(rows *sql.Rows) (employeeRow, error) {
	var e employeeRow
	err := rows.Scan(&e.Number, &e.Name)
	return e, err
}

func newMockResolver(t *testing.T) (staticResolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return staticResolver{conn: sqldb.NewSQLDBAdapter(db, dbconfig.DatabaseConfig{Type: "mysql"}, "app")}, mock
}

func TestSQLCursorReader_ReadsAllRows(t *testing.T) {
	resolver, mock := newMockResolver(t)
	mock.ExpectQuery("SELECT empnumber, empname FROM employee").
		WithArgs("CLERK").
		WillReturnRows(sqlmock.NewRows([]string{"empnumber", "empname"}).AddRow(1, "ada").AddRow(2, "grace"))

	r := reader.NewSQLCursorReader[employeeRow]("employees", resolver, "app",
		"SELECT empnumber, empname FROM employee WHERE jobtitle = ?", []any{"CLERK"}, mapEmployee)
	ec := model.NewExecutionContext()
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, ec))

	first, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, employeeRow{1, "ada"}, first)
	second, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "grace", second.Name)
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, port.ErrEndOfInput)

	count, _ := ec.GetInt("employees.readCount")
	assert.Equal(t, 2, count)
	require.NoError(t, r.Close(ctx))
}

func TestSQLCursorReader_ResumeSkipsConsumedRows(t *testing.T) {
	resolver, mock := newMockResolver(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"empnumber", "empname"}).AddRow(1, "a").AddRow(2, "b").AddRow(3, "c"))

	ec := model.NewExecutionContext()
	ec.Put("employees.readCount", 2)
	r := reader.NewSQLCursorReader[employeeRow]("employees", resolver, "app", "SELECT empnumber, empname FROM employee", nil, mapEmployee)
	require.NoError(t, r.Open(context.Background(), ec))

	item, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, item.Number)
}

func TestSQLCursorReader_MapperFailureIsSourceError(t *testing.T) {
	resolver, mock := newMockResolver(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"empnumber", "empname"}).AddRow("not-a-number", "a").AddRow(2, "b"))

	r := reader.NewSQLCursorReader[employeeRow]("employees", resolver, "app", "SELECT empnumber, empname FROM employee", nil, mapEmployee)
	require.NoError(t, r.Open(context.Background(), nil))

	_, err := r.Read(context.Background())
	assert.True(t, exception.IsSourceError(err))
	item, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, item.Number)
}

func TestSQLCursorReader_OpenFailures(t *testing.T) {
	r := reader.NewSQLCursorReader[employeeRow]("employees", staticResolver{err: errors.New("no route")}, "app", "SELECT 1", nil, mapEmployee)
	err := r.Open(context.Background(), nil)
	assert.True(t, exception.IsSourceError(err))

	resolver, mock := newMockResolver(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("syntax error"))
	r = reader.NewSQLCursorReader[employeeRow]("employees", resolver, "app", "SELECT oops", nil, mapEmployee)
	err = r.Open(context.Background(), nil)
	assert.True(t, exception.IsSourceError(err))

	_, err = reader.NewSQLCursorReader[employeeRow]("employees", resolver, "app", "SELECT 1", nil, mapEmployee).Read(context.Background())
	assert.True(t, exception.IsSourceError(err))
}
