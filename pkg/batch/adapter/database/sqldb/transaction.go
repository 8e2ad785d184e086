package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// SQLTx is a chunk transaction over *sql.Tx.
type SQLTx struct {
	tx   *sql.Tx
	done atomic.Bool
}

// Exec implements tx.Tx.
func (t *SQLTx) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if t.done.Load() {
		return 0, tx.ErrTxDone
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report affected rows; the statement itself succeeded.
		return 0, nil
	}
	return n, nil
}

// Savepoint implements tx.Tx.
func (t *SQLTx) Savepoint(name string) error {
	_, err := t.Exec(context.Background(), "SAVEPOINT "+name)
	return err
}

// RollbackToSavepoint implements tx.Tx.
func (t *SQLTx) RollbackToSavepoint(name string) error {
	_, err := t.Exec(context.Background(), "ROLLBACK TO SAVEPOINT "+name)
	return err
}

var _ tx.Tx = (*SQLTx)(nil)

// SQLTransactionManager implements tx.TransactionManager over a database/sql pool.
type SQLTransactionManager struct {
	source func(ctx context.Context) (*sql.DB, error)
}

// NewSQLTransactionManager resolves the connection dbName on every Begin.
//
// Parameters:
//   resolver: The resolver that provides the named connection.
//   dbName: The name of the database connection.
//
// Returns:
//   A new SQLTransactionManager instance.
func NewSQLTransactionManager(resolver database.DBConnectionResolver, dbName string) *SQLTransactionManager {
	return &SQLTransactionManager{
		source: func(ctx context.Context) (*sql.DB, error) {
			conn, err := resolver.ResolveDBConnection(ctx, dbName)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", dbName, err)
			}
			return conn.GetSQLDB()
		},
	}
}

// NewSQLTransactionManagerForDB binds the manager to an already open pool.
func NewSQLTransactionManagerForDB(db *sql.DB) *SQLTransactionManager {
	return &SQLTransactionManager{
		source: func(context.Context) (*sql.DB, error) { return db, nil },
	}
}

// Begin implements tx.TransactionManager.
func (m *SQLTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	db, err := m.source(ctx)
	if err != nil {
		return nil, err
	}
	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	sqlTx, err := db.BeginTx(ctx, txOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &SQLTx{tx: sqlTx}, nil
}

// Commit implements tx.TransactionManager.
func (m *SQLTransactionManager) Commit(t tx.Tx) error {
	st, err := m.claim(t)
	if err != nil {
		return err
	}
	return translateTxErr(st.tx.Commit())
}

// Rollback implements tx.TransactionManager.
func (m *SQLTransactionManager) Rollback(t tx.Tx) error {
	st, err := m.claim(t)
	if err != nil {
		return err
	}
	return translateTxErr(st.tx.Rollback())
}

func (m *SQLTransactionManager) claim(t tx.Tx) (*SQLTx, error) {
	st, ok := t.(*SQLTx)
	if !ok {
		return nil, fmt.Errorf("invalid transaction type: expected *SQLTx, got %T", t)
	}
	if !st.done.CompareAndSwap(false, true) {
		return nil, tx.ErrTxDone
	}
	return st, nil
}

func translateTxErr(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return tx.ErrTxDone
	}
	return err
}

var _ tx.TransactionManager = (*SQLTransactionManager)(nil)
