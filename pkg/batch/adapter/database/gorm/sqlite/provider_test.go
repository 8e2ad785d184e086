package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

type person struct {
	ID   int    `gorm:"primaryKey;column:id"`
	Name string `gorm:"column:name"`
}

func newTransactionManager(t *testing.T) (*gormadapter.GormTransactionManager, *database.ConnectionResolver) {
	t.Helper()
	section := map[string]interface{}{
		"app": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "app.db"),
		},
	}
	provider := gormadapter.NewBaseProviderFromSection(section, "sqlite")
	resolver := database.NewConnectionResolver([]database.DBProvider{provider}, section)
	t.Cleanup(func() { _ = resolver.CloseAll() })

	conn, err := resolver.ResolveDBConnection(context.Background(), "app")
	require.NoError(t, err)
	db := conn.(*gormadapter.GormDBAdapter).GetGormDB()
	require.NoError(t, db.Exec("CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL)").Error)

	return gormadapter.NewGormTransactionManager(resolver, "app"), resolver
}

func countPeople(t *testing.T, resolver *database.ConnectionResolver) int64 {
	t.Helper()
	conn, err := resolver.ResolveDBConnection(context.Background(), "app")
	require.NoError(t, err)
	var n int64
	require.NoError(t, conn.(*gormadapter.GormDBAdapter).GetGormDB().Table("people").Count(&n).Error)
	return n
}

func TestBaseProvider_CachesConnections(t *testing.T) {
	section := map[string]interface{}{
		"app": map[string]interface{}{"type": "sqlite", "database": filepath.Join(t.TempDir(), "cache.db")},
	}
	provider := gormadapter.NewBaseProviderFromSection(section, "sqlite")
	defer provider.CloseAll()

	first, err := provider.GetConnection("app")
	require.NoError(t, err)
	second, err := provider.GetConnection("app")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "sqlite", first.Type())
	assert.Equal(t, "app", first.Name())

	reconnected, err := provider.ForceReconnect("app")
	require.NoError(t, err)
	assert.NotSame(t, first, reconnected)

	_, err = provider.GetConnection("missing")
	assert.Error(t, err)
}

func TestGormTransactionManager_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	tm, resolver := newTransactionManager(t)

	committed, err := tm.Begin(ctx)
	require.NoError(t, err)
	exec, ok := committed.(tx.EntityExecutor)
	require.True(t, ok)
	rows, err := exec.ExecuteUpdate(ctx, &[]person{{ID: 1, Name: "ada"}, {ID: 2, Name: "grace"}}, "CREATE", "people", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rows)
	require.NoError(t, tm.Commit(committed))
	assert.EqualValues(t, 2, countPeople(t, resolver))

	rolledBack, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = rolledBack.Exec(ctx, "INSERT INTO people (id, name) VALUES (?, ?)", 3, "linus")
	require.NoError(t, err)
	require.NoError(t, tm.Rollback(rolledBack))
	assert.EqualValues(t, 2, countPeople(t, resolver))

	assert.ErrorIs(t, tm.Commit(rolledBack), tx.ErrTxDone)
}

func TestGormTx_FailedInsertLeavesNothingAfterRollback(t *testing.T) {
	ctx := context.Background()
	tm, resolver := newTransactionManager(t)

	t1, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = t1.Exec(ctx, "INSERT INTO people (id, name) VALUES (?, ?)", 1, "ada")
	require.NoError(t, err)
	_, err = t1.Exec(ctx, "INSERT INTO people (id, name) VALUES (?, ?)", 1, "duplicate")
	require.Error(t, err)
	require.NoError(t, tm.Rollback(t1))

	assert.EqualValues(t, 0, countPeople(t, resolver))
}

func TestGormTx_UpsertAndSavepoint(t *testing.T) {
	ctx := context.Background()
	tm, resolver := newTransactionManager(t)

	t1, err := tm.Begin(ctx)
	require.NoError(t, err)
	exec := t1.(tx.EntityExecutor)

	_, err = exec.ExecuteUpsert(ctx, &person{ID: 1, Name: "ada"}, "people", []string{"id"}, nil)
	require.NoError(t, err)
	rows, err := exec.ExecuteUpsert(ctx, &person{ID: 1, Name: "ignored"}, "people", []string{"id"}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rows)

	require.NoError(t, t1.Savepoint("sp1"))
	_, err = t1.Exec(ctx, "INSERT INTO people (id, name) VALUES (?, ?)", 2, "grace")
	require.NoError(t, err)
	require.NoError(t, t1.RollbackToSavepoint("sp1"))
	require.NoError(t, tm.Commit(t1))

	assert.EqualValues(t, 1, countPeople(t, resolver))
}

func TestGormTx_UnsupportedOperation(t *testing.T) {
	ctx := context.Background()
	tm, _ := newTransactionManager(t)
	t1, err := tm.Begin(ctx)
	require.NoError(t, err)
	defer tm.Rollback(t1)

	_, err = t1.(tx.EntityExecutor).ExecuteUpdate(ctx, &person{ID: 1}, "MERGE", "people", nil)
	assert.ErrorContains(t, err, "unsupported update operation")
}
