package reader

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const sqlCursorModule = "SQLCursorReader"

// RowMapper maps the current row of a cursor to T.
type RowMapper[T any] func(rows *sql.Rows) (T, error)

// SQLCursorReader streams the result of one query, mapping each row to T.
// Its read position is kept in the ExecutionContext; a reopened reader skips the rows
// already consumed.
type SQLCursorReader[T any] struct {
	name     string                        // name identifies the reader and prefixes its ExecutionContext keys.
	resolver database.DBConnectionResolver // resolver supplies the connection on Open.
	connName string                        // connName is the configured database connection.
	query    string
	args     []any
	mapper   RowMapper[T] // mapper converts the current row to T.

	rows      *sql.Rows
	readCount int
	ec        model.ExecutionContext
}

// NewSQLCursorReader creates a reader running query on the connection connName.
//
// Parameters:
//
//	name: A unique name for this reader instance.
//	resolver: Resolves connName when the reader is opened.
//	connName: The name of the database connection.
//	query: The SELECT statement to stream.
//	args: The query arguments.
//	mapper: Maps each row to T.
//
// Returns:
//
//	A new [SQLCursorReader] instance.
func NewSQLCursorReader[T any](name string, resolver database.DBConnectionResolver, connName string, query string, args []any, mapper RowMapper[T]) *SQLCursorReader[T] {
	return &SQLCursorReader[T]{
		name:     name,
		resolver: resolver,
		connName: connName,
		query:    query,
		args:     args,
		mapper:   mapper,
	}
}

// Open executes the query and skips the rows an earlier run already consumed.
//
// Parameters:
//
//	ctx: The context for the operation.
//	ec: The [model.ExecutionContext] of the current step.
//
// Returns:
//
//	A SourceError if the connection cannot be resolved or the query fails.
func (r *SQLCursorReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.ec = ec
	if r.ec == nil {
		r.ec = model.NewExecutionContext()
	}
	conn, err := r.resolver.ResolveDBConnection(ctx, r.connName)
	if err != nil {
		return exception.NewSourceError(sqlCursorModule, fmt.Sprintf("SQLCursorReader '%s': failed to resolve connection '%s'", r.name, r.connName), err)
	}
	db, err := conn.GetSQLDB()
	if err != nil {
		return exception.NewSourceError(sqlCursorModule, fmt.Sprintf("SQLCursorReader '%s': no *sql.DB behind connection '%s'", r.name, r.connName), err)
	}
	rows, err := db.QueryContext(ctx, r.query, r.args...)
	if err != nil {
		return exception.NewSourceError(sqlCursorModule, fmt.Sprintf("SQLCursorReader '%s': query failed", r.name), err)
	}
	r.rows = rows
	r.readCount = 0

	resume, _ := r.ec.GetInt(r.name + ".readCount")
	for r.readCount < resume && r.rows.Next() {
		r.readCount++
	}
	if resume > 0 {
		logger.Infof("SQLCursorReader '%s': resumed after %d rows.", r.name, r.readCount)
	} else {
		logger.Debugf("SQLCursorReader '%s': started query %s", r.name, r.query)
	}
	return nil
}

// Read maps the next row. A row the mapper rejects is a SourceError; the cursor stays usable.
func (r *SQLCursorReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.rows == nil {
		return item, exception.NewSourceError(sqlCursorModule, fmt.Sprintf("SQLCursorReader '%s': reader is not open", r.name), nil)
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return item, exception.NewSourceError(sqlCursorModule, fmt.Sprintf("SQLCursorReader '%s': row iteration failed", r.name), err)
		}
		return item, port.ErrEndOfInput
	}
	r.readCount++
	r.ec.Put(r.name+".readCount", r.readCount)

	mapped, err := r.mapper(r.rows)
	if err != nil {
		return item, exception.NewSourceError(sqlCursorModule, fmt.Sprintf("SQLCursorReader '%s': cannot map row %d", r.name, r.readCount), err)
	}
	return mapped, nil
}

// Close releases the cursor.
func (r *SQLCursorReader[T]) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if err != nil {
		return exception.NewSourceError(sqlCursorModule, fmt.Sprintf("SQLCursorReader '%s': failed to close rows", r.name), err)
	}
	return nil
}

var (
	_ port.ItemReader[any] = (*SQLCursorReader[any])(nil)
	_ port.ItemStream      = (*SQLCursorReader[any])(nil)
)
