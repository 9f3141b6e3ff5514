// Package postgres extracts raw measurements from and loads cleaned data
// into PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

// Reader extracts recent rows from the raw measurements table. Only rows
// younger than the lookback window are returned, so repeated runs stay
// incremental.
type Reader struct {
	pool     *pgxpool.Pool
	table    string
	lookback time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewReader creates a Postgres extractor.
func NewReader(pool *pgxpool.Pool, table string, lookback time.Duration, clock clockwork.Clock, logger *slog.Logger) *Reader {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reader{
		pool:     pool,
		table:    table,
		lookback: lookback,
		clock:    clock,
		logger:   logger,
	}
}

// Extract reads every row inside the lookback window into a dataset.
// Column names come from the result set, so schema changes flow through
// without code changes.
func (r *Reader) Extract(ctx context.Context) (*dataset.Dataset, error) {
	cutoff := r.clock.Now().UTC().Add(-r.lookback)

	query := fmt.Sprintf("SELECT * FROM %s WHERE ts_utc > $1", pgx.Identifier{r.table}.Sanitize())
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.table, err)
	}
	defer rows.Close()

	columns := make([]string, len(rows.FieldDescriptions()))
	for i, fd := range rows.FieldDescriptions() {
		columns[i] = fd.Name
	}

	ds := dataset.New()
	i := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", i, err)
		}
		ds.AppendRow(dataset.Row{})
		for c, column := range columns {
			ds.Set(i, column, convertValue(values[c]))
		}
		i++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	r.logger.Debug("extracted measurements", "table", r.table, "rows", ds.Len(), "cutoff", cutoff)
	return ds, nil
}

// Name identifies the source in logs and metrics.
func (r *Reader) Name() string { return "db" }

// convertValue maps a driver value onto a dataset cell. Unrecognized types
// fall back to their string rendering rather than failing the extraction.
func convertValue(v any) dataset.Value {
	switch x := v.(type) {
	case nil:
		return dataset.Null()
	case float64:
		return dataset.Number(x)
	case float32:
		return dataset.Number(float64(x))
	case int64:
		return dataset.Number(float64(x))
	case int32:
		return dataset.Number(float64(x))
	case int16:
		return dataset.Number(float64(x))
	case bool:
		return dataset.Bool(x)
	case string:
		return dataset.Text(x)
	case []byte:
		return dataset.Text(string(x))
	case time.Time:
		return dataset.Time(x)
	case pgtype.Numeric:
		return convertNumeric(x)
	default:
		return dataset.Text(fmt.Sprint(x))
	}
}

func convertNumeric(n pgtype.Numeric) dataset.Value {
	if !n.Valid {
		return dataset.Null()
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return dataset.Text(numericString(n))
	}
	return dataset.Number(f.Float64)
}

func numericString(n pgtype.Numeric) string {
	if n.Int == nil {
		return ""
	}
	return new(big.Float).SetInt(n.Int).Text('f', -1)
}
