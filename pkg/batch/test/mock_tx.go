package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// MockTx is a mock implementation of the tx.Tx interface.
type MockTx struct {
	mock.Mock
}

// Exec mocks the Exec method of tx.Tx.
func (m *MockTx) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	called := m.Called(ctx, query, args)
	return called.Get(0).(int64), called.Error(1)
}

// Savepoint mocks the Savepoint method of tx.Tx.
func (m *MockTx) Savepoint(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

// RollbackToSavepoint mocks the RollbackToSavepoint method of tx.Tx.
func (m *MockTx) RollbackToSavepoint(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

// MockEntityTx is a MockTx that also implements tx.EntityExecutor.
type MockEntityTx struct {
	MockTx
}

// ExecuteUpdate mocks the ExecuteUpdate method of tx.EntityExecutor.
func (m *MockEntityTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, model, operation, tableName, query)
	return args.Get(0).(int64), args.Error(1)
}

// ExecuteUpsert mocks the ExecuteUpsert method of tx.EntityExecutor.
func (m *MockEntityTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	args := m.Called(ctx, model, tableName, conflictColumns, updateColumns)
	return args.Get(0).(int64), args.Error(1)
}

// MockTxManager is a mock implementation of the tx.TransactionManager interface.
type MockTxManager struct {
	mock.Mock
}

// Begin mocks the Begin method of tx.TransactionManager.
// It returns a mock Tx instance or an error.
func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tx.Tx), args.Error(1)
}

// Commit mocks the Commit method of tx.TransactionManager.
func (m *MockTxManager) Commit(t tx.Tx) error {
	args := m.Called(t)
	return args.Error(0)
}

// Rollback mocks the Rollback method of tx.TransactionManager.
func (m *MockTxManager) Rollback(t tx.Tx) error {
	args := m.Called(t)
	return args.Error(0)
}

var (
	_ tx.Tx                 = (*MockTx)(nil)
	_ tx.EntityExecutor     = (*MockEntityTx)(nil)
	_ tx.TransactionManager = (*MockTxManager)(nil)
)
