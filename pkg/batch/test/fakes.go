package test

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// ReadResult is one scripted outcome of SliceReader.Read.
type ReadResult[T any] struct {
	Item T
	Err  error
}

// SliceReader is an ItemReader replaying a fixed script of records and errors.
type SliceReader[T any] struct {
	mu      sync.Mutex
	results []ReadResult[T]
	pos     int
	// ReadsAfterEnd counts Read calls made after ErrEndOfInput was returned.
	ReadsAfterEnd int
}

// NewSliceReader builds a reader returning items in order.
func NewSliceReader[T any](items ...T) *SliceReader[T] {
	results := make([]ReadResult[T], len(items))
	for i, it := range items {
		results[i] = ReadResult[T]{Item: it}
	}
	return &SliceReader[T]{results: results}
}

// NewScriptedReader builds a reader replaying results in order.
func NewScriptedReader[T any](results ...ReadResult[T]) *SliceReader[T] {
	return &SliceReader[T]{results: results}
}

// Read implements port.ItemReader.
func (r *SliceReader[T]) Read(ctx context.Context) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if r.pos >= len(r.results) {
		if r.pos > len(r.results) {
			r.ReadsAfterEnd++
		}
		r.pos++
		return zero, port.ErrEndOfInput
	}
	res := r.results[r.pos]
	r.pos++
	return res.Item, res.Err
}

// ReadCalls returns the number of Read calls made so far.
func (r *SliceReader[T]) ReadCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// ErrInjected is returned by InMemorySink when a failure is scripted.
var ErrInjected = errors.New("injected failure")

// InMemorySink is both an ItemWriter and its TransactionManager. Writes are staged in the
// transaction and become visible in Committed only when the transaction commits.
type InMemorySink[T any] struct {
	mu sync.Mutex

	// FailWriteOn makes the n-th Write call (1-based) fail. Zero disables it.
	FailWriteOn int
	// FailCommitOn makes the n-th Commit call (1-based) fail. Zero disables it.
	FailCommitOn int

	committed  []T
	chunks     [][]T
	writeCalls int
	begins     int
	commits    int
	rollbacks  int
	open       int
	maxOpen    int
	options    []*sql.TxOptions
}

type memTx[T any] struct {
	staged []T
	done   bool
}

func (t *memTx[T]) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return 0, tx.ErrNoResource
}

func (t *memTx[T]) Savepoint(name string) error           { return nil }
func (t *memTx[T]) RollbackToSavepoint(name string) error { return nil }

// NewInMemorySink creates an empty sink.
func NewInMemorySink[T any]() *InMemorySink[T] {
	return &InMemorySink[T]{}
}

// Begin implements tx.TransactionManager.
func (s *InMemorySink[T]) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	s.open++
	if s.open > s.maxOpen {
		s.maxOpen = s.open
	}
	s.options = append(s.options, opts...)
	return &memTx[T]{}, nil
}

// Write implements port.ItemWriter.
func (s *InMemorySink[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	if s.FailWriteOn == s.writeCalls {
		return ErrInjected
	}
	mt, ok := t.(*memTx[T])
	if !ok || mt.done {
		return tx.ErrTxDone
	}
	mt.staged = append(mt.staged, items...)
	return nil
}

// Commit implements tx.TransactionManager.
func (s *InMemorySink[T]) Commit(t tx.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mt := t.(*memTx[T])
	if mt.done {
		return tx.ErrTxDone
	}
	mt.done = true
	s.open--
	s.commits++
	if s.FailCommitOn == s.commits {
		return ErrInjected
	}
	s.committed = append(s.committed, mt.staged...)
	s.chunks = append(s.chunks, append([]T(nil), mt.staged...))
	return nil
}

// Rollback implements tx.TransactionManager.
func (s *InMemorySink[T]) Rollback(t tx.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mt := t.(*memTx[T])
	if mt.done {
		return tx.ErrTxDone
	}
	mt.done = true
	s.open--
	s.rollbacks++
	return nil
}

// Committed returns every durable item in commit order.
func (s *InMemorySink[T]) Committed() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.committed...)
}

// Chunks returns the items of each committed chunk.
func (s *InMemorySink[T]) Chunks() [][]T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]T(nil), s.chunks...)
}

// WriteCalls returns the number of Write calls.
func (s *InMemorySink[T]) WriteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCalls
}

// Stats returns begin, commit, and rollback counts.
func (s *InMemorySink[T]) Stats() (begins, commits, rollbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins, s.commits, s.rollbacks
}

// MaxOpen returns the highest number of simultaneously open transactions.
func (s *InMemorySink[T]) MaxOpen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOpen
}

// TxOptions returns the options passed to Begin.
func (s *InMemorySink[T]) TxOptions() []*sql.TxOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*sql.TxOptions(nil), s.options...)
}

var (
	_ port.ItemReader[int]  = (*SliceReader[int])(nil)
	_ port.ItemWriter[int]  = (*InMemorySink[int])(nil)
	_ tx.TransactionManager = (*InMemorySink[int])(nil)
)
