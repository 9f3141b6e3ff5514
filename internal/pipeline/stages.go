package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/energitic/windfarm-etl/internal/dataset"
	"github.com/energitic/windfarm-etl/internal/domain"
	"github.com/energitic/windfarm-etl/internal/observability"
)

// StageOptions selects the transform stages and their order.
type StageOptions struct {
	// Location is the timezone timestamps are normalized into.
	Location *time.Location

	// CleanFirst moves cleaning ahead of timestamp and unit normalization.
	// Enrichment always precedes cleaning so that drop-mode cleaning can
	// reindex the position-derived turbine_id it added.
	CleanFirst bool

	Anomaly domain.AnomalyOptions
}

// Stages builds the standard transform sequence from the domain functions.
// Default order: normalize timestamps, convert units, enrich, clean.
func Stages(opts StageOptions, logger *slog.Logger, metrics *observability.Metrics) []Stage {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	normalize := StageFunc{
		StageName: "normalize_timestamps",
		Fn: func(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return domain.NormalizeTimestamps(ds, loc, logger), nil
		},
	}
	convert := StageFunc{
		StageName: "convert_units",
		Fn: func(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return domain.ConvertUnits(ds), nil
		},
	}
	enrich := StageFunc{
		StageName: "enrich",
		Fn: func(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return domain.Enrich(ds), nil
		},
	}
	clean := StageFunc{
		StageName: "clean",
		Fn: func(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
			out, stats := domain.Clean(ds, opts.Anomaly, logger)
			for metric, n := range stats.Detected {
				metrics.AnomaliesDetected.WithLabelValues(metric).Add(float64(n))
			}
			for metric, n := range stats.Repaired {
				metrics.AnomaliesRepaired.WithLabelValues(metric).Add(float64(n))
			}
			if stats.Imputed > 0 {
				metrics.MissingImputed.Add(float64(stats.Imputed))
			}
			return out, nil
		},
	}

	if opts.CleanFirst {
		return []Stage{enrich, clean, normalize, convert}
	}
	return []Stage{normalize, convert, enrich, clean}
}
