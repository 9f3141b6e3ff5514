// Package csvfile reads and writes the semicolon-separated production CSV
// format and can generate synthetic production months for testing.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

const separator = ';'

// Reader extracts a dataset from a semicolon-separated CSV file. The first
// record is the header; numeric-looking cells are parsed as numbers, empty
// cells become null.
type Reader struct {
	path string
}

// NewReader creates a CSV extractor for the given path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Extract reads the whole file into a dataset.
func (r *Reader) Extract(_ context.Context) (*dataset.Dataset, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = separator

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s is empty", r.path)
	}

	// csv.ReadAll already enforces a uniform field count, so every record
	// lines up with the header.
	header := records[0]
	ds := dataset.New()
	for i, record := range records[1:] {
		ds.AppendRow(dataset.Row{})
		for col, cell := range record {
			ds.Set(i, header[col], parseCell(cell))
		}
	}
	return ds, nil
}

// Name identifies the source in logs and metrics.
func (r *Reader) Name() string { return "csv" }

func parseCell(s string) dataset.Value {
	if s == "" {
		return dataset.Null()
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return dataset.Number(n)
	}
	return dataset.Text(s)
}
