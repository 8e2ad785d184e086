// Package tx abstracts the transaction scope the chunk engine opens around every chunk write.
// Concrete managers live in the database adapters (GORM, database/sql); the resourceless
// manager serves sinks whose single write call is already atomic.
package tx

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
)

var (
	// ErrTxDone is returned when a transaction is used after Commit or Rollback.
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
	// ErrNoResource is returned by Exec on a transaction that is not bound to a database.
	ErrNoResource = errors.New("transaction is not bound to a database resource")
)

// Tx is an open transaction scope handed to an ItemWriter for exactly one chunk.
type Tx interface {
	// Exec runs a statement inside the transaction and returns the affected row count.
	Exec(ctx context.Context, query string, args ...interface{}) (rowsAffected int64, err error)
	// Savepoint creates a named savepoint.
	Savepoint(name string) error
	// RollbackToSavepoint undoes the work done after the named savepoint.
	RollbackToSavepoint(name string) error
}

// EntityExecutor is implemented by ORM-backed transactions that can persist Go structs directly.
type EntityExecutor interface {
	// ExecuteUpdate performs "CREATE", "UPDATE" or "DELETE" of model on tableName.
	// query holds the AND-combined column conditions for UPDATE and DELETE.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)
	// ExecuteUpsert inserts model, updating updateColumns when conflictColumns collide.
	// An empty updateColumns means DO NOTHING on conflict.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
}

// TransactionManager begins, commits, and rolls back transactions.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

type txContextKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, t)
}

// TxFromContext returns the transaction stored by WithTx, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txContextKey{}).(Tx)
	return t, ok && t != nil
}

// ResourcelessTransactionManager hands out transactions that only track their own
// completion. It suits sinks such as object storage where each write is a single atomic upload.
type ResourcelessTransactionManager struct{}

// NewResourcelessTransactionManager creates a ResourcelessTransactionManager.
func NewResourcelessTransactionManager() *ResourcelessTransactionManager {
	return &ResourcelessTransactionManager{}
}

type resourcelessTx struct {
	done atomic.Bool
}

func (t *resourcelessTx) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return 0, ErrNoResource
}

func (t *resourcelessTx) Savepoint(name string) error {
	if t.done.Load() {
		return ErrTxDone
	}
	return nil
}

func (t *resourcelessTx) RollbackToSavepoint(name string) error {
	if t.done.Load() {
		return ErrTxDone
	}
	return nil
}

// Begin implements TransactionManager.
func (m *ResourcelessTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &resourcelessTx{}, nil
}

// Commit implements TransactionManager.
func (m *ResourcelessTransactionManager) Commit(t Tx) error {
	return finish(t)
}

// Rollback implements TransactionManager.
func (m *ResourcelessTransactionManager) Rollback(t Tx) error {
	return finish(t)
}

func finish(t Tx) error {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return errors.New("resourceless transaction manager received a foreign transaction")
	}
	if !rt.done.CompareAndSwap(false, true) {
		return ErrTxDone
	}
	return nil
}

var _ TransactionManager = (*ResourcelessTransactionManager)(nil)
