// Package writer provides the item sinks of a chunk step. Each Write persists one chunk
// inside the transaction the engine hands in.
package writer

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// GormWriter persists chunks of structs through an ORM-backed transaction.
// With conflict columns it upserts; without, it inserts.
type GormWriter[T any] struct {
	name            string   // name identifies the writer in logs and errors.
	tableName       string   // tableName is the target table.
	bulkSize        int      // bulkSize caps the rows per statement; 0 writes a chunk at once.
	conflictColumns []string // conflictColumns switch the writer to upsert when set.
	updateColumns   []string // updateColumns are refreshed on conflict; empty means DO NOTHING.
}

// GormWriterOption configures a GormWriter.
type GormWriterOption func(*gormWriterOptions)

type gormWriterOptions struct {
	bulkSize        int
	conflictColumns []string
	updateColumns   []string
}

// WithBulkSize splits a chunk into statements of at most n rows.
func WithBulkSize(n int) GormWriterOption {
	return func(o *gormWriterOptions) { o.bulkSize = n }
}

// WithUpsert turns inserts into upserts on conflictColumns. An empty updateColumns means
// rows that already exist are left untouched.
func WithUpsert(conflictColumns []string, updateColumns []string) GormWriterOption {
	return func(o *gormWriterOptions) {
		o.conflictColumns = conflictColumns
		o.updateColumns = updateColumns
	}
}

// NewGormWriter creates a GormWriter for tableName.
//
// Parameters:
//
//	name: A unique name for this writer instance.
//	tableName: The name of the target database table.
//	opts: Optional bulk size and upsert settings.
//
// Returns:
//
//	A new [GormWriter] instance.
func NewGormWriter[T any](name, tableName string, opts ...GormWriterOption) *GormWriter[T] {
	var o gormWriterOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &GormWriter[T]{
		name:            name,
		tableName:       tableName,
		bulkSize:        o.bulkSize,
		conflictColumns: o.conflictColumns,
		updateColumns:   o.updateColumns,
	}
}

// Write persists items through t, which must implement [tx.EntityExecutor].
// Any failure is a SinkError; the engine rolls back.
//
// Parameters:
//
//	ctx: The context for the operation.
//	t: The transaction of the current chunk.
//	items: The chunk to persist.
//
// Returns:
//
//	A SinkError if t cannot persist entities or a statement fails, otherwise nil.
func (w *GormWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	exec, ok := t.(tx.EntityExecutor)
	if !ok {
		return exception.NewSinkError("writer", fmt.Sprintf("GormWriter '%s': transaction %T cannot persist entities", w.name, t), nil)
	}

	step := w.bulkSize
	if step <= 0 {
		step = len(items)
	}
	for i := 0; i < len(items); i += step {
		end := min(i+step, len(items))
		batch := items[i:end]

		var err error
		if len(w.conflictColumns) > 0 {
			_, err = exec.ExecuteUpsert(ctx, &batch, w.tableName, w.conflictColumns, w.updateColumns)
		} else {
			_, err = exec.ExecuteUpdate(ctx, &batch, "CREATE", w.tableName, nil)
		}
		if err != nil {
			return exception.NewSinkError("writer", fmt.Sprintf("GormWriter '%s': failed to write rows %d-%d into '%s'", w.name, i, end-1, w.tableName), err)
		}
	}
	logger.Debugf("GormWriter '%s': wrote %d items into '%s'.", w.name, len(items), w.tableName)
	return nil
}

var _ port.ItemWriter[any] = (*GormWriter[any])(nil)
