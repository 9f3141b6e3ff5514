// Package dashboard renders a static HTML quality report for a cleaned
// dataset: summary statistics, missing-value rates, anomaly counts, and a
// sample of the data itself.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

// maxTableRows caps the data sample in the report so a large batch does
// not produce a multi-megabyte page.
const maxTableRows = 200

var anomalyFlagColumns = []string{"energy_anomaly", "wind_anomaly", "temp_anomaly", "anomaly"}

// Renderer writes the quality report. It implements pipeline.Loader so the
// dashboard refreshes on every run.
type Renderer struct {
	path   string
	logger *slog.Logger
}

// NewRenderer creates a dashboard sink writing to the given path.
func NewRenderer(path string, logger *slog.Logger) *Renderer {
	return &Renderer{path: path, logger: logger}
}

// Load renders the report and replaces the previous file atomically, so a
// reader never sees a half-written page.
func (r *Renderer) Load(_ context.Context, ds *dataset.Dataset) error {
	report := buildReport(ds)

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	var buf strings.Builder
	if err := pageTemplate.Execute(&buf, report); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}

	r.logger.Info("quality report rendered", "path", r.path, "rows", ds.Len())
	return nil
}

// Name identifies the sink in logs and metrics.
func (r *Renderer) Name() string { return "dashboard" }

// report is the template context.
type report struct {
	Rows      int
	Columns   []string
	Quality   []columnQuality
	Anomalies []anomalyCount
	Table     [][]string
	Truncated bool
}

// columnQuality summarizes one column: missing rate, and for numeric
// columns the min/max/mean over present values.
type columnQuality struct {
	Column     string
	MissingPct string
	Min        string
	Max        string
	Mean       string
}

type anomalyCount struct {
	Flag  string
	Count int
}

func buildReport(ds *dataset.Dataset) report {
	columns := ds.Columns()
	rep := report{
		Rows:    ds.Len(),
		Columns: columns,
	}

	for _, column := range columns {
		rep.Quality = append(rep.Quality, qualityFor(ds, column))
	}

	for _, flag := range anomalyFlagColumns {
		if !ds.HasColumn(flag) {
			continue
		}
		count := 0
		for i := 0; i < ds.Len(); i++ {
			if v, ok := ds.At(i, flag); ok {
				if b, _ := v.Bool(); b {
					count++
				}
			}
		}
		rep.Anomalies = append(rep.Anomalies, anomalyCount{Flag: flag, Count: count})
	}

	shown := ds.Len()
	if shown > maxTableRows {
		shown = maxTableRows
		rep.Truncated = true
	}
	for i := 0; i < shown; i++ {
		record := make([]string, len(columns))
		for c, column := range columns {
			if v, ok := ds.At(i, column); ok {
				record[c] = v.String()
			}
		}
		rep.Table = append(rep.Table, record)
	}

	return rep
}

func qualityFor(ds *dataset.Dataset, column string) columnQuality {
	missing := 0
	var sum float64
	var count int
	min := math.Inf(1)
	max := math.Inf(-1)

	for i := 0; i < ds.Len(); i++ {
		v, ok := ds.At(i, column)
		if !ok || v.IsNull() {
			missing++
			continue
		}
		if n, ok := v.Number(); ok {
			sum += n
			count++
			if n < min {
				min = n
			}
			if n > max {
				max = n
			}
		}
	}

	q := columnQuality{Column: column, MissingPct: "0.0%"}
	if ds.Len() > 0 {
		q.MissingPct = fmt.Sprintf("%.1f%%", 100*float64(missing)/float64(ds.Len()))
	}
	if count > 0 {
		q.Min = formatStat(min)
		q.Max = formatStat(max)
		q.Mean = formatStat(sum / float64(count))
	}
	return q
}

func formatStat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

var pageTemplate = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>Rapport qualité production éolienne</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; margin-bottom: 2rem; }
th, td { border: 1px solid #999; padding: 4px 10px; text-align: left; }
th { background: #eee; }
caption { font-weight: bold; margin-bottom: 0.5rem; text-align: left; }
</style>
</head>
<body>
<h1>Rapport qualité production éolienne</h1>
<p>{{.Rows}} lignes, {{len .Columns}} colonnes.</p>

<table>
<caption>Qualité par colonne</caption>
<tr><th>Colonne</th><th>Manquants</th><th>Min</th><th>Max</th><th>Moyenne</th></tr>
{{range .Quality}}<tr><td>{{.Column}}</td><td>{{.MissingPct}}</td><td>{{.Min}}</td><td>{{.Max}}</td><td>{{.Mean}}</td></tr>
{{end}}</table>

{{if .Anomalies}}<table>
<caption>Anomalies détectées</caption>
<tr><th>Indicateur</th><th>Lignes</th></tr>
{{range .Anomalies}}<tr><td>{{.Flag}}</td><td>{{.Count}}</td></tr>
{{end}}</table>
{{end}}

<table>
<caption>Données{{if .Truncated}} (premières {{len .Table}} lignes){{end}}</caption>
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Table}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
</body>
</html>
`))
