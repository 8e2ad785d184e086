package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ParquetWriterConfig locates the output of a ParquetWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection receiving the parts.
	StorageRef string
	// Bucket overrides the connection's configured bucket when set.
	Bucket string
	// OutputBaseDir is the object prefix of every part (e.g., "exports/employee").
	OutputBaseDir string
	// CompressionType is "SNAPPY" (default), "GZIP" or "NONE".
	CompressionType string
}

// ParquetWriter encodes every chunk as one parquet part and uploads it in a single call.
// A chunk is therefore durable exactly when its upload succeeds; pair it with
// tx.ResourcelessTransactionManager. R is the parquet row type and carries the
// `parquet:"..."` schema tags.
type ParquetWriter[T, R any] struct {
	name     string                            // name identifies the writer in logs and errors.
	config   ParquetWriterConfig               // config locates the output.
	codec    parquet.CompressionCodec          // codec compresses every column chunk.
	resolver storage.StorageConnectionResolver // resolver supplies the storage connection on Open.
	toRow    func(T) R                         // toRow converts an item to its parquet row.

	conn  storage.StorageConnection
	runID string // runID keeps part names of concurrent runs apart.
	parts int    // parts counts the parts uploaded so far.
	ec    model.ExecutionContext
}

// NewParquetWriter validates config and creates the writer.
//
// Parameters:
//
//	name: A unique name for this writer instance.
//	config: The storage connection, prefix and compression of the parts.
//	resolver: Resolves config.StorageRef when the writer is opened.
//	toRow: Converts one item to the parquet row type R.
//
// Returns:
//
//	The writer, or a ConfigurationError for a missing storage connection or an unknown codec.
func NewParquetWriter[T, R any](name string, config ParquetWriterConfig, resolver storage.StorageConnectionResolver, toRow func(T) R) (*ParquetWriter[T, R], error) {
	if config.StorageRef == "" {
		return nil, exception.NewConfigurationErrorf("writer", "ParquetWriter '%s' requires a storage connection", name)
	}
	if config.CompressionType == "" {
		config.CompressionType = "SNAPPY"
	}
	codec, err := getCompressionCodec(config.CompressionType)
	if err != nil {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("ParquetWriter '%s'", name), err)
	}
	return &ParquetWriter[T, R]{
		name:     name,
		config:   config,
		codec:    codec,
		resolver: resolver,
		toRow:    toRow,
	}, nil
}

func (w *ParquetWriter[T, R]) partsKey() string { return w.name + ".partCount" }

// Open resolves the storage connection and starts a new part sequence.
// The part count is restored from ec when an earlier run stored one.
//
// Parameters:
//
//	ctx: The context for the operation.
//	ec: The [model.ExecutionContext] of the current step.
//
// Returns:
//
//	A SinkError if the storage connection cannot be resolved, otherwise nil.
func (w *ParquetWriter[T, R]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.config.StorageRef)
	if err != nil {
		return exception.NewSinkError("writer", fmt.Sprintf("ParquetWriter '%s': failed to resolve storage connection '%s'", w.name, w.config.StorageRef), err)
	}
	w.conn = conn
	w.ec = ec
	if w.ec == nil {
		w.ec = model.NewExecutionContext()
	}
	w.parts, _ = w.ec.GetInt(w.partsKey())
	w.runID = model.NewID()[:8]
	logger.Infof("ParquetWriter '%s' opened. Target: %s/%s", w.name, w.config.StorageRef, w.config.OutputBaseDir)
	return nil
}

// Write encodes items as one parquet part and uploads it. t is not used: the upload is the
// commit.
//
// Parameters:
//
//	ctx: The context for the operation.
//	t: The transaction of the current chunk (resourceless).
//	items: The chunk to persist.
//
// Returns:
//
//	A SinkError if the writer is not open, encoding fails or the upload fails.
func (w *ParquetWriter[T, R]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if w.conn == nil {
		return exception.NewSinkError("writer", fmt.Sprintf("ParquetWriter '%s' is not open", w.name), nil)
	}

	buf, err := w.encode(items)
	if err != nil {
		return exception.NewSinkError("writer", fmt.Sprintf("ParquetWriter '%s': failed to encode %d items", w.name, len(items)), err)
	}

	objectName := path.Join(w.config.OutputBaseDir, fmt.Sprintf("part-%05d-%s.parquet", w.parts+1, w.runID))
	if err := w.conn.Upload(ctx, w.config.Bucket, objectName, buf, "application/octet-stream"); err != nil {
		return exception.NewSinkError("writer", fmt.Sprintf("ParquetWriter '%s': failed to upload '%s'", w.name, objectName), err)
	}
	w.parts++
	w.ec.Put(w.partsKey(), w.parts)
	logger.Debugf("ParquetWriter '%s': uploaded %d rows to '%s'.", w.name, len(items), objectName)
	return nil
}

func (w *ParquetWriter[T, R]) encode(items []T) (buf *bytes.Buffer, err error) {
	// The library panics on some schema mismatches instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()

	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(R), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = w.codec
	for _, item := range items {
		if err := pw.Write(w.toRow(item)); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close forgets the connection; the resolver owns its lifecycle.
func (w *ParquetWriter[T, R]) Close(ctx context.Context) error {
	logger.Infof("ParquetWriter '%s' closed after %d parts.", w.name, w.parts)
	w.conn = nil
	return nil
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

var (
	_ port.ItemWriter[any] = (*ParquetWriter[any, any])(nil)
	_ port.ItemStream      = (*ParquetWriter[any, any])(nil)
)
