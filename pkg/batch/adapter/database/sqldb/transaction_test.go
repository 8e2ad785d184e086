package sqldb_test

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/sqldb"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

func TestSQLTransactionManager_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO employee (empnumber) VALUES (?)")).
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	tm := sqldb.NewSQLTransactionManagerForDB(db)
	ctx := context.Background()
	t1, err := tm.Begin(ctx)
	require.NoError(t, err)
	rows, err := t1.Exec(ctx, "INSERT INTO employee (empnumber) VALUES (?)", 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
	require.NoError(t, tm.Commit(t1))

	assert.ErrorIs(t, tm.Commit(t1), tx.ErrTxDone)
	assert.ErrorIs(t, tm.Rollback(t1), tx.ErrTxDone)
	_, err = t1.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, tx.ErrTxDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTransactionManager_RollbackAfterFailedExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO employee").WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	tm := sqldb.NewSQLTransactionManagerForDB(db)
	ctx := context.Background()
	t1, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = t1.Exec(ctx, "INSERT INTO employee (empnumber) VALUES (?)", 1)
	require.Error(t, err)
	require.NoError(t, tm.Rollback(t1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTx_Savepoints(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tm := sqldb.NewSQLTransactionManagerForDB(db)
	t1, err := tm.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, t1.Savepoint("sp1"))
	require.NoError(t, t1.RollbackToSavepoint("sp1"))
	require.NoError(t, tm.Commit(t1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTransactionManager_BeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err = sqldb.NewSQLTransactionManagerForDB(db).Begin(context.Background())
	assert.ErrorContains(t, err, "failed to begin transaction")
}

func TestSQLTransactionManager_RejectsForeignTx(t *testing.T) {
	tm := sqldb.NewSQLTransactionManagerForDB(nil)
	foreign, err := tx.NewResourcelessTransactionManager().Begin(context.Background())
	require.NoError(t, err)
	assert.Error(t, tm.Commit(foreign))
}

func TestSQLTransactionManager_SQLiteResolver(t *testing.T) {
	section := map[string]interface{}{
		"app": map[string]interface{}{"type": "sqlite", "database": filepath.Join(t.TempDir(), "app.db")},
	}
	resolver := database.NewConnectionResolver(sqldb.NewProviders(section), section)
	defer resolver.CloseAll()

	ctx := context.Background()
	conn, err := resolver.ResolveDBConnection(ctx, "app")
	require.NoError(t, err)
	sqlDB, err := conn.GetSQLDB()
	require.NoError(t, err)
	_, err = sqlDB.Exec("CREATE TABLE employee (empnumber INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	tm := sqldb.NewSQLTransactionManager(resolver, "app")
	t1, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = t1.Exec(ctx, "INSERT INTO employee (empnumber) VALUES (?)", 1)
	require.NoError(t, err)
	require.NoError(t, tm.Rollback(t1))

	var n int
	require.NoError(t, sqlDB.QueryRow("SELECT COUNT(*) FROM employee").Scan(&n))
	assert.Equal(t, 0, n)

	_, err = sqlDB.Exec("SELECT * FROM missing_table")
	assert.True(t, conn.IsTableNotExistError(err))
}

func TestBindStyleFor(t *testing.T) {
	assert.Equal(t, sqldb.BindDollar, sqldb.BindStyleFor("postgres"))
	assert.Equal(t, sqldb.BindDollar, sqldb.BindStyleFor("Redshift"))
	assert.Equal(t, sqldb.BindQuestion, sqldb.BindStyleFor("mysql"))
	assert.Equal(t, sqldb.BindQuestion, sqldb.BindStyleFor("sqlite"))
	assert.Equal(t, sqldb.BindQuestion, sqldb.BindStyleFor("snowflake"))
}
