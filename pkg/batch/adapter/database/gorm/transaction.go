package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// GormTx is the chunk transaction handed to writers by GormTransactionManager.
// Besides tx.Tx it implements tx.EntityExecutor, so writers can persist structs directly.
type GormTx struct {
	db *gorm.DB
}

// DB returns the transaction-bound GORM handle.
func (t *GormTx) DB() *gorm.DB {
	return t.db
}

// Exec runs a raw statement; "?" placeholders are rebound for the dialect.
func (t *GormTx) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result := t.db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteUpdate implements tx.EntityExecutor.
func (t *GormTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	db := t.db.WithContext(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	var result *gorm.DB
	switch operation {
	case "CREATE":
		result = db.Create(model)
	case "UPDATE":
		result = db.Model(model).Where(query).Updates(model)
	case "DELETE":
		if query != nil {
			db = db.Where(query)
		}
		result = db.Delete(model)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteUpsert implements tx.EntityExecutor.
func (t *GormTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	db := t.db.WithContext(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, col := range conflictColumns {
		columns = append(columns, clause.Column{Name: col})
	}
	onConflict := clause.OnConflict{Columns: columns}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}

	result := db.Clauses(onConflict).Create(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Savepoint implements tx.Tx.
func (t *GormTx) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

// RollbackToSavepoint implements tx.Tx.
func (t *GormTx) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

var (
	_ tx.Tx             = (*GormTx)(nil)
	_ tx.EntityExecutor = (*GormTx)(nil)
)

// GormTransactionManager implements tx.TransactionManager for one named connection.
// The connection is resolved on every Begin so a dropped pool is re-established between chunks.
type GormTransactionManager struct {
	dbResolver database.DBConnectionResolver // Resolver for the named connection.
	dbName     string                        // Name of the database connection.
}

// NewGormTransactionManager creates a transaction manager for the connection dbName.
func NewGormTransactionManager(dbResolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{dbResolver: dbResolver, dbName: dbName}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	conn, err := m.dbResolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", m.dbName, err)
	}
	adapter, ok := conn.(*GormDBAdapter)
	if !ok {
		return nil, fmt.Errorf("connection '%s' is %T, expected *GormDBAdapter", m.dbName, conn)
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	gormTx := adapter.GetGormDB().WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTx{db: gormTx}, nil
}

// Commit implements tx.TransactionManager.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gt, ok := t.(*GormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	return translateTxErr(gt.db.Commit().Error)
}

// Rollback implements tx.TransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gt, ok := t.(*GormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	return translateTxErr(gt.db.Rollback().Error)
}

func translateTxErr(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return tx.ErrTxDone
	}
	return err
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)
