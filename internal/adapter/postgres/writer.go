package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

// Writer loads cleaned datasets into a Postgres table. Each run inserts
// every row in a single transaction so a partial batch never lands.
type Writer struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
}

// NewWriter creates a Postgres sink.
func NewWriter(pool *pgxpool.Pool, table string, logger *slog.Logger) *Writer {
	return &Writer{pool: pool, table: table, logger: logger}
}

// Load inserts all dataset rows. Column names come from the dataset;
// absent and null cells both insert SQL NULL.
func (w *Writer) Load(ctx context.Context, ds *dataset.Dataset) error {
	columns := ds.Columns()
	if len(columns) == 0 || ds.Len() == 0 {
		return nil
	}

	query := insertStatement(w.table, columns)

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := 0; i < ds.Len(); i++ {
		args := make([]any, len(columns))
		for c, column := range columns {
			args[c] = sqlValue(ds, i, column)
		}
		batch.Queue(query, args...)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	w.logger.Info("loaded rows", "table", w.table, "rows", ds.Len())
	return nil
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "db" }

func insertStatement(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = pgx.Identifier{column}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))
}

func sqlValue(ds *dataset.Dataset, i int, column string) any {
	v, ok := ds.At(i, column)
	if !ok || v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case dataset.KindNumber:
		n, _ := v.Number()
		return n
	case dataset.KindBool:
		b, _ := v.Bool()
		return b
	case dataset.KindTime:
		t, _ := v.Time()
		return t
	default:
		return v.String()
	}
}
