package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

// Writer loads a dataset into a semicolon-separated CSV file. Columns are
// emitted in dataset order; absent and null cells both render empty.
type Writer struct {
	path string
}

// NewWriter creates a CSV sink for the given path. Parent directories are
// created on first load.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Load writes the dataset, replacing any previous file.
func (w *Writer) Load(_ context.Context, ds *dataset.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}

	if err := writeRecords(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeRecords(f *os.File, ds *dataset.Dataset) error {
	cw := csv.NewWriter(f)
	cw.Comma = separator

	columns := ds.Columns()
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(columns))
	for i := 0; i < ds.Len(); i++ {
		for c, column := range columns {
			v, ok := ds.At(i, column)
			if !ok {
				record[c] = ""
				continue
			}
			record[c] = v.String()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "csv" }
