package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const csvModule = "CSVReader"

// CSVReader reads delimited text into T. The header line names the columns, and each
// row is decoded into T by matching column names against the struct's tag.
// A row that cannot be split or decoded is a SourceError for that row only.
type CSVReader[T any] struct {
	name        string // name identifies the reader and prefixes its ExecutionContext keys.
	open        Opener // open yields the raw input on Open.
	comma       rune
	tagName     string // tagName is the struct tag matched against header names.
	timeLayout  string // timeLayout parses time.Time columns.
	linesToSkip int    // linesToSkip lines precede the header.

	rc        io.ReadCloser
	csv       *csv.Reader
	header    []string
	line      int // line is the 1-based line of the last record read, for error messages.
	readCount int
	ec        model.ExecutionContext
}

// CSVOption configures a CSVReader.
type CSVOption func(*csvOptions)

type csvOptions struct {
	comma       rune
	tagName     string
	timeLayout  string
	linesToSkip int
}

// WithComma sets the field delimiter. The default is ','.
func WithComma(r rune) CSVOption { return func(o *csvOptions) { o.comma = r } }

// WithTagName sets the struct tag holding column names. The default is "csv".
func WithTagName(tag string) CSVOption { return func(o *csvOptions) { o.tagName = tag } }

// WithTimeLayout sets the layout used to parse time.Time fields. The default is "2006-01-02".
func WithTimeLayout(layout string) CSVOption { return func(o *csvOptions) { o.timeLayout = layout } }

// WithLinesToSkip skips n lines before the header.
func WithLinesToSkip(n int) CSVOption { return func(o *csvOptions) { o.linesToSkip = n } }

// NewCSVReader creates a CSVReader named name that reads from open.
//
// Parameters:
//
//	name: A unique name for this reader instance.
//	open: Opens the raw input once per run.
//	opts: Optional delimiter, tag name, time layout and preamble settings.
//
// Returns:
//
//	A new [CSVReader] instance. Nothing is opened until Open is called.
func NewCSVReader[T any](name string, open Opener, opts ...CSVOption) *CSVReader[T] {
	o := csvOptions{comma: ',', tagName: "csv", timeLayout: "2006-01-02"}
	for _, opt := range opts {
		opt(&o)
	}
	return &CSVReader[T]{
		name:        name,
		open:        open,
		comma:       o.comma,
		tagName:     o.tagName,
		timeLayout:  o.timeLayout,
		linesToSkip: o.linesToSkip,
	}
}

func (r *CSVReader[T]) readCountKey() string { return r.name + ".readCount" }

// Open opens the input and consumes the header. When ec carries a read count from an
// earlier run, that many data rows are skipped.
//
// Parameters:
//
//	ctx: The context for the operation.
//	ec: The [model.ExecutionContext] of the current step; nil starts from the first row.
//
// Returns:
//
//	A SourceError if the input cannot be opened or the header cannot be read.
func (r *CSVReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	rc, err := r.open(ctx)
	if err != nil {
		return exception.NewSourceError(csvModule, fmt.Sprintf("CSVReader '%s': failed to open input", r.name), err)
	}
	r.rc = rc
	r.csv = csv.NewReader(rc)
	r.csv.Comma = r.comma
	r.csv.TrimLeadingSpace = true
	r.csv.FieldsPerRecord = -1
	r.line = 0
	r.header = nil
	r.readCount = 0
	r.ec = ec
	if r.ec == nil {
		r.ec = model.NewExecutionContext()
	}

	for i := 0; i < r.linesToSkip; i++ {
		if _, err := r.next(); err != nil {
			return r.openFailure(err)
		}
	}
	header, err := r.next()
	if errors.Is(err, io.EOF) {
		logger.Warnf("CSVReader '%s': input is empty.", r.name)
		return nil
	}
	if err != nil {
		return r.openFailure(err)
	}
	r.header = make([]string, len(header))
	for i, h := range header {
		r.header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	r.csv.FieldsPerRecord = len(r.header)

	if resume, ok := r.ec.GetInt(r.readCountKey()); ok && resume > 0 {
		for r.readCount < resume {
			if _, err := r.next(); errors.Is(err, io.EOF) {
				break
			}
			r.readCount++
		}
		logger.Infof("CSVReader '%s': resumed after %d rows.", r.name, r.readCount)
	}
	return nil
}

func (r *CSVReader[T]) openFailure(err error) error {
	if errors.Is(err, io.EOF) {
		return exception.NewSourceError(csvModule, fmt.Sprintf("CSVReader '%s': input ended before the header", r.name), err)
	}
	return exception.NewSourceError(csvModule, fmt.Sprintf("CSVReader '%s': failed to read header", r.name), err)
}

func (r *CSVReader[T]) next() ([]string, error) {
	record, err := r.csv.Read()
	if err == nil || !errors.Is(err, io.EOF) {
		r.line++
	}
	return record, err
}

// Read returns the next decoded row, port.ErrEndOfInput at the end, or a SourceError
// naming the offending line.
func (r *CSVReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.csv == nil {
		return item, exception.NewSourceError(csvModule, fmt.Sprintf("CSVReader '%s': reader is not open", r.name), nil)
	}
	if r.header == nil {
		return item, port.ErrEndOfInput
	}

	record, err := r.next()
	if errors.Is(err, io.EOF) {
		return item, port.ErrEndOfInput
	}
	r.readCount++
	r.ec.Put(r.readCountKey(), r.readCount)
	if err != nil {
		return item, exception.NewSourceError(csvModule, fmt.Sprintf("CSVReader '%s': malformed line %d", r.name, r.line), err)
	}

	row := make(map[string]interface{}, len(r.header))
	for i, col := range r.header {
		row[col] = strings.TrimSpace(record[i])
	}
	if err := r.decode(row, &item); err != nil {
		return item, exception.NewSourceError(csvModule, fmt.Sprintf("CSVReader '%s': cannot map line %d", r.name, r.line), err)
	}
	return item, nil
}

func (r *CSVReader[T]) decode(row map[string]interface{}, target *T) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          r.tagName,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			configbinder.StringToTimeHookFunc(r.timeLayout),
			emptyStringToNilHook,
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(row)
}

// emptyStringToNilHook leaves pointer fields nil for empty cells. It must run last in a
// composed hook chain because later hooks cannot take a nil input.
func emptyStringToNilHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() == reflect.String && to.Kind() == reflect.Ptr && data == "" {
		return nil, nil
	}
	return data, nil
}

// Close closes the input.
func (r *CSVReader[T]) Close(ctx context.Context) error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	r.csv = nil
	if err != nil {
		return exception.NewSourceError(csvModule, fmt.Sprintf("CSVReader '%s': failed to close input", r.name), err)
	}
	logger.Debugf("CSVReader '%s': closed after %d rows.", r.name, r.readCount)
	return nil
}

var (
	_ port.ItemReader[any] = (*CSVReader[any])(nil)
	_ port.ItemStream      = (*CSVReader[any])(nil)
)
