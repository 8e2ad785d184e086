// Package exception provides the error taxonomy of chunkbatch.
// Every failure surfaced by the chunk engine is a BatchError carrying one of the
// kind sentinels below, so callers can classify it with errors.Is and
// configuration can name it through the type registry.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Registered names of the error kinds.
const (
	SourceErrorType        = "SourceError"
	ProcessingErrorType    = "ProcessingError"
	SinkErrorType          = "SinkError"
	ConfigurationErrorType = "ConfigurationError"
)

var (
	// ErrSource marks a malformed or unreadable input record.
	ErrSource = errors.New(SourceErrorType)
	// ErrProcessing marks a transformation failure for one record.
	ErrProcessing = errors.New(ProcessingErrorType)
	// ErrSink marks a failed chunk write or transaction. Always fatal.
	ErrSink = errors.New(SinkErrorType)
	// ErrConfiguration marks an invalid run configuration detected before any record is read.
	ErrConfiguration = errors.New(ConfigurationErrorType)
)

var (
	errorRegistry = make(map[string]error)
	registryMutex sync.RWMutex
)

// RegisterErrorType maps a name usable in configuration (e.g. skippable_exceptions)
// to a prototype compared with errors.Is. It panics on an empty name or nil prototype.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name is present in the registry.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is the error type produced by chunkbatch components.
type BatchError struct {
	// Module is the component that raised the error ("reader", "processor", "writer", "config", ...).
	Module string
	// Message is a concise description of the failure.
	Message string
	// OriginalErr is the wrapped cause. For the kind constructors it joins the kind sentinel.
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is captured at construction for debugging.
	StackTrace string
}

// NewBatchError creates a BatchError with explicit skip and retry flags.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf is NewBatchError with a formatted message. A trailing error argument
// is taken as the cause and not used for formatting.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var cause error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok {
			cause = err
			a = a[:n-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), cause, false, false)
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func joinKind(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return errors.Join(kind, cause)
}

// NewSourceError wraps a per-record read or field-mapping failure.
func NewSourceError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, joinKind(ErrSource, cause), true, false)
}

// NewProcessingError wraps a per-record transformation failure.
func NewProcessingError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, joinKind(ErrProcessing, cause), true, false)
}

// NewSinkError wraps a chunk write, commit, or rollback failure. Sink errors are never skippable.
func NewSinkError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, joinKind(ErrSink, cause), false, false)
}

// NewConfigurationError reports an invalid configuration value.
func NewConfigurationError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, joinKind(ErrConfiguration, cause), false, false)
}

// NewConfigurationErrorf is NewConfigurationError with a formatted message.
func NewConfigurationErrorf(module, format string, a ...interface{}) *BatchError {
	return NewConfigurationError(module, fmt.Sprintf(format, a...), nil)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports whether the error was flagged retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable reports whether the error was flagged skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsSourceError reports whether err carries ErrSource.
func IsSourceError(err error) bool { return errors.Is(err, ErrSource) }

// IsProcessingError reports whether err carries ErrProcessing.
func IsProcessingError(err error) bool { return errors.Is(err, ErrProcessing) }

// IsSinkError reports whether err carries ErrSink.
func IsSinkError(err error) bool { return errors.Is(err, ErrSink) }

// IsConfigurationError reports whether err carries ErrConfiguration.
func IsConfigurationError(err error) bool { return errors.Is(err, ErrConfiguration) }

// KindOf returns the registered kind name carried by err, or "" if none.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case IsConfigurationError(err):
		return ConfigurationErrorType
	case IsSinkError(err):
		return SinkErrorType
	case IsProcessingError(err):
		return ProcessingErrorType
	case IsSourceError(err):
		return SourceErrorType
	}
	return ""
}

// IsErrorOfType reports whether err matches errorTypeName. The name is resolved, in order,
// against the registry (errors.Is), the messages of the unwrap chain, and the Go type names
// of the chain (e.g. "*strconv.NumError").
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok {
		// Registered names match only through errors.Is; a substring match on
		// "SourceError" would otherwise catch unrelated messages.
		return errors.Is(err, target)
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if strings.Contains(cur.Error(), errorTypeName) {
			return true
		}
		if t := reflect.TypeOf(cur); t != nil {
			if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName) {
				return true
			}
		}
		// errors.Join produces a multi-unwrap error; descend into each branch.
		if joined, ok := cur.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				if IsErrorOfType(e, errorTypeName) {
					return true
				}
			}
			return false
		}
	}
	return false
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType(SourceErrorType, ErrSource)
	RegisterErrorType(ProcessingErrorType, ErrProcessing)
	RegisterErrorType(SinkErrorType, ErrSink)
	RegisterErrorType(ConfigurationErrorType, ErrConfiguration)

	RegisterErrorType("io.EOF", io.EOF)
	RegisterErrorType("io.ErrUnexpectedEOF", io.ErrUnexpectedEOF)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
}
