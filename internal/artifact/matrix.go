// Package artifact reads and writes the files that make up a recording attempt.
package artifact

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// Column layouts of the dense array artifacts.
var (
	PupilColumns     = []string{"timestamp", "confidence", "id", "norm_x", "norm_y", "diameter"}
	GazeColumns      = []string{"timestamp", "confidence", "norm_x", "norm_y"}
	TimestampColumns = []string{"timestamp"}
)

// Matrix is a dense row-major float64 table with named columns.
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

func (m Matrix) schema() *arrow.Schema {
	fields := make([]arrow.Field, len(m.Columns))
	for i, name := range m.Columns {
		fields[i] = arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64}
	}
	return arrow.NewSchema(fields, nil)
}

// WriteMatrix stores m at path as an Arrow IPC file. A matrix without rows
// produces a valid file that only carries the schema.
func WriteMatrix(path string, m Matrix) error {
	if len(m.Columns) == 0 {
		return fmt.Errorf("matrix for %s has no columns", path)
	}
	for i, row := range m.Rows {
		if len(row) != len(m.Columns) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(m.Columns))
		}
	}

	schema := m.schema()
	mem := memory.NewGoAllocator()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to create IPC writer: %w", err)
	}

	if len(m.Rows) > 0 {
		b := array.NewRecordBuilder(mem, schema)
		defer b.Release()

		for col := range m.Columns {
			fb := b.Field(col).(*array.Float64Builder)
			fb.Reserve(len(m.Rows))
			for _, row := range m.Rows {
				fb.Append(row[col])
			}
		}

		rec := b.NewRecord()
		defer rec.Release()

		if err := w.Write(rec); err != nil {
			w.Close()
			f.Close()
			return fmt.Errorf("failed to write batch: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// ReadMatrix loads a matrix written by WriteMatrix.
func ReadMatrix(path string) (Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return Matrix{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return Matrix{}, fmt.Errorf("failed to read IPC file %s: %w", path, err)
	}
	defer r.Close()

	var m Matrix
	for _, field := range r.Schema().Fields() {
		m.Columns = append(m.Columns, field.Name)
	}

	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return Matrix{}, fmt.Errorf("failed to read batch %d: %w", i, err)
		}

		cols := make([]*array.Float64, rec.NumCols())
		for c := range cols {
			col, ok := rec.Column(c).(*array.Float64)
			if !ok {
				return Matrix{}, fmt.Errorf("column %q is %s, expected float64", m.Columns[c], rec.Column(c).DataType())
			}
			cols[c] = col
		}

		for row := 0; row < int(rec.NumRows()); row++ {
			values := make([]float64, len(cols))
			for c, col := range cols {
				values[c] = col.Value(row)
			}
			m.Rows = append(m.Rows, values)
		}
	}

	return m, nil
}

// WriteSeries stores a single timestamp column.
func WriteSeries(path string, series []float64) error {
	rows := make([][]float64, len(series))
	for i, v := range series {
		rows[i] = []float64{v}
	}
	return WriteMatrix(path, Matrix{Columns: TimestampColumns, Rows: rows})
}

// ReadSeries loads the first column of a matrix file.
func ReadSeries(path string) ([]float64, error) {
	m, err := ReadMatrix(path)
	if err != nil {
		return nil, err
	}
	series := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		if len(row) == 0 {
			return nil, fmt.Errorf("%s has no columns", path)
		}
		series[i] = row[0]
	}
	return series, nil
}
