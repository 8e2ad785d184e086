package writer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/sqldb"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ParamsFunc returns the named parameters of one item.
type ParamsFunc[T any] func(item T) map[string]interface{}

// NamedSQLWriter executes one statement with ":name" parameters per item.
type NamedSQLWriter[T any] struct {
	name   string        // name identifies the writer in logs and errors.
	query  string        // query is the compiled statement with driver placeholders.
	names  []string      // names lists the parameter names in placeholder order.
	params ParamsFunc[T] // params extracts the named values of one item.
}

// NewNamedSQLWriter compiles query for the given placeholder style. A "::" cast and text
// inside single quotes are left alone.
//
// Parameters:
//
//	name: A unique name for this writer instance.
//	query: The statement with ":name" parameters.
//	style: The placeholder style of the target driver ([sqldb.BindQuestion] or [sqldb.BindDollar]).
//	params: Returns the named values of one item.
//
// Returns:
//
//	The compiled writer, or a ConfigurationError when query is malformed or has no parameters.
func NewNamedSQLWriter[T any](name, query string, style sqldb.BindStyle, params ParamsFunc[T]) (*NamedSQLWriter[T], error) {
	compiled, names, err := compileNamed(query, style)
	if err != nil {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("NamedSQLWriter '%s': invalid statement", name), err)
	}
	if len(names) == 0 {
		return nil, exception.NewConfigurationErrorf("writer", "NamedSQLWriter '%s': statement has no named parameters", name)
	}
	return &NamedSQLWriter[T]{name: name, query: compiled, names: names, params: params}, nil
}

// Query returns the statement as sent to the driver.
func (w *NamedSQLWriter[T]) Query() string { return w.query }

// Write executes the statement once per item inside the chunk transaction t.
//
// Parameters:
//
//	ctx: The context for the operation.
//	t: The transaction of the current chunk.
//	items: The chunk to persist.
//
// Returns:
//
//	A SinkError for the first item whose parameters are missing or whose statement fails.
func (w *NamedSQLWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	for i, item := range items {
		values := w.params(item)
		args := make([]interface{}, len(w.names))
		for j, n := range w.names {
			v, ok := values[n]
			if !ok {
				return exception.NewSinkError("writer", fmt.Sprintf("NamedSQLWriter '%s': item %d has no parameter '%s'", w.name, i, n), nil)
			}
			args[j] = v
		}
		if _, err := t.Exec(ctx, w.query, args...); err != nil {
			return exception.NewSinkError("writer", fmt.Sprintf("NamedSQLWriter '%s': statement failed for item %d", w.name, i), err)
		}
	}
	logger.Debugf("NamedSQLWriter '%s': executed %d statements.", w.name, len(items))
	return nil
}

func compileNamed(query string, style sqldb.BindStyle) (string, []string, error) {
	var b strings.Builder
	var names []string
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case inQuote || c != ':':
			b.WriteByte(c)
		case i+1 < len(query) && query[i+1] == ':':
			b.WriteString("::")
			i++
		default:
			j := i + 1
			for j < len(query) && isIdentByte(query[j]) {
				j++
			}
			if j == i+1 {
				return "", nil, fmt.Errorf("dangling ':' at offset %d", i)
			}
			names = append(names, query[i+1:j])
			if style == sqldb.BindDollar {
				b.WriteString("$" + strconv.Itoa(len(names)))
			} else {
				b.WriteByte('?')
			}
			i = j - 1
		}
	}
	if inQuote {
		return "", nil, fmt.Errorf("unterminated quoted string")
	}
	return b.String(), names, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

var _ port.ItemWriter[any] = (*NamedSQLWriter[any])(nil)
