package reader_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/chunkbatch/pkg/batch/test"
)

type row struct {
	ID      int       `csv:"id"`
	Name    string    `csv:"name"`
	Manager *int      `csv:"manager"`
	Since   time.Time `csv:"since"`
}

func stringOpener(s string) reader.Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func readAll(t *testing.T, r port.ItemReader[row]) ([]row, []error) {
	t.Helper()
	var rows []row
	var errs []error
	for i := 0; i < 100; i++ {
		item, err := r.Read(context.Background())
		if port.IsEndOfInput(err) {
			return rows, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, item)
	}
	t.Fatal("reader never reached end of input")
	return nil, nil
}

func TestCSVReader_MapsRowsByHeader(t *testing.T) {
	input := "id,name,manager,since\n" +
		"1,Ada,,2020-01-15\n" +
		"2, Grace ,1,2021-06-01\n"
	r := reader.NewCSVReader[row]("people", stringOpener(input))
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())

	rows, errs := readAll(t, r)
	require.Empty(t, errs)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].ID)
	assert.Equal(t, "Ada", rows[0].Name)
	assert.Nil(t, rows[0].Manager)
	assert.Equal(t, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC), rows[0].Since)

	assert.Equal(t, "Grace", rows[1].Name)
	require.NotNil(t, rows[1].Manager)
	assert.Equal(t, 1, *rows[1].Manager)
}

func TestCSVReader_MalformedRowsAreSourceErrors(t *testing.T) {
	input := "id,name,manager,since\n" +
		"1,Ada,,2020-01-15\n" +
		"2,TooFew\n" +
		"x,BadNumber,,2020-01-15\n" +
		"4,BadDate,,15/01/2020\n" +
		"5,Linus,,2022-02-02\n"
	r := reader.NewCSVReader[row]("people", stringOpener(input))
	require.NoError(t, r.Open(context.Background(), nil))

	rows, errs := readAll(t, r)
	require.Len(t, rows, 2)
	assert.Equal(t, []int{1, 5}, []int{rows[0].ID, rows[1].ID})
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.True(t, exception.IsSourceError(err), err.Error())
	}
	assert.Contains(t, errs[0].Error(), "malformed line 3")
}

func TestCSVReader_ColumnOrderFollowsHeader(t *testing.T) {
	input := "since;name;id;manager\n2023-03-03;Edsger;9;\n"
	r := reader.NewCSVReader[row]("people", stringOpener(input), reader.WithComma(';'))
	require.NoError(t, r.Open(context.Background(), nil))

	rows, errs := readAll(t, r)
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	assert.Equal(t, 9, rows[0].ID)
	assert.Equal(t, "Edsger", rows[0].Name)
}

func TestCSVReader_EmptyInputEndsImmediately(t *testing.T) {
	r := reader.NewCSVReader[row]("people", stringOpener(""))
	require.NoError(t, r.Open(context.Background(), nil))
	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, port.ErrEndOfInput)
}

func TestCSVReader_HeaderOnly(t *testing.T) {
	r := reader.NewCSVReader[row]("people", stringOpener("id,name,manager,since\n"))
	require.NoError(t, r.Open(context.Background(), nil))
	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, port.ErrEndOfInput)
}

func TestCSVReader_OpenFailure(t *testing.T) {
	failing := func(context.Context) (io.ReadCloser, error) { return nil, errors.New("object not found") }
	r := reader.NewCSVReader[row]("people", failing)
	err := r.Open(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, exception.IsSourceError(err))
}

func TestCSVReader_ReadBeforeOpen(t *testing.T) {
	r := reader.NewCSVReader[row]("people", stringOpener(""))
	_, err := r.Read(context.Background())
	assert.True(t, exception.IsSourceError(err))
}

func TestCSVReader_ResumesFromExecutionContext(t *testing.T) {
	input := "id,name,manager,since\n1,a,,\n2,b,,\n3,c,,\n"
	ec := testutil.NewTestExecutionContext(map[string]interface{}{"people.readCount": 2})

	r := reader.NewCSVReader[row]("people", stringOpener(input))
	require.NoError(t, r.Open(context.Background(), ec))
	rows, errs := readAll(t, r)
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].ID)

	count, ok := ec.GetInt("people.readCount")
	require.True(t, ok)
	assert.Equal(t, 3, count)
}

func TestCSVReader_LinesToSkip(t *testing.T) {
	input := "# exported 2024-01-01\nid,name,manager,since\n7,g,,\n"
	r := reader.NewCSVReader[row]("people", stringOpener(input), reader.WithLinesToSkip(1))
	require.NoError(t, r.Open(context.Background(), nil))
	rows, errs := readAll(t, r)
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].ID)
}
