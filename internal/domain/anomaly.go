package domain

import (
	"log/slog"
	"sort"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

// Column names the anomaly engine operates on. Grouping uses turbin_id (the
// production-CSV spelling), not the enriched turbine_id alias.
const (
	ColEnergy      = "energie_kWh"
	ColGroup       = "turbin_id"
	ColWindSpeed   = "wind_speed"
	ColWindSpeedMS = "wind_speed_ms"
	ColTemperature = "temperature"

	FlagEnergy = "energy_anomaly"
	FlagWind   = "wind_anomaly"
	FlagTemp   = "temp_anomaly"
	FlagMerged = "anomaly"
)

// Detection thresholds.
const (
	// minGroupSize is the smallest population for which quartile estimates
	// are considered reliable; smaller groups are skipped entirely.
	minGroupSize = 4
	iqrFactor    = 1.5

	windCeilingKmh = 150.0
	windCeilingMs  = windCeilingKmh / 3.6
	tempFloor      = -80.0
	tempCeiling    = 60.0
)

// Outage indicator columns: binary, repaired with a fixed default instead
// of a median.
var outageColumns = []string{"arret_planifie", "arret_non_planifie"}

// AnomalyOptions configures detection and repair. The zero value keeps
// flags metric-scoped and repairs by median substitution.
type AnomalyOptions struct {
	// MergeFlags additionally derives a single "anomaly" column as the OR
	// of all metric-scoped flags. Repair always keys off the metric-scoped
	// columns regardless.
	MergeFlags bool

	// DropAnomalies removes flagged rows instead of repairing them.
	DropAnomalies bool
}

// CleanStats counts the work a detection or cleaning pass performed, so the
// pipeline can feed its counters. Detected is keyed by metric class
// (energy, wind, temperature), Repaired by metric column; zero counts are
// omitted from the maps.
type CleanStats struct {
	Detected map[string]int
	Repaired map[string]int
	Dropped  int
	Imputed  int
}

// DetectOutliers adds boolean anomaly-flag columns, one per metric class,
// recomputed from scratch: energy via the grouped 1.5×IQR rule, wind speed
// and temperature via fixed physical-plausibility bounds. Missing metric
// columns skip their rule with a warning; detection never fails the pass.
func DetectOutliers(ds *dataset.Dataset, opts AnomalyOptions, logger *slog.Logger) (*dataset.Dataset, CleanStats) {
	stats := CleanStats{Detected: map[string]int{}, Repaired: map[string]int{}}

	if n := detectEnergyOutliers(ds, logger); n > 0 {
		stats.Detected["energy"] = n
	}
	wind, temp := detectThresholdOutliers(ds, logger)
	if wind > 0 {
		stats.Detected["wind"] = wind
	}
	if temp > 0 {
		stats.Detected["temperature"] = temp
	}

	if opts.MergeFlags {
		mergeFlags(ds)
	}
	return ds, stats
}

// detectEnergyOutliers applies the grouped IQR rule to the energy metric
// and returns the number of rows flagged.
func detectEnergyOutliers(ds *dataset.Dataset, logger *slog.Logger) int {
	if !ds.HasColumn(ColEnergy) || !ds.HasColumn(ColGroup) {
		logger.Warn("skipping energy outlier detection, required column missing",
			"metric", ColEnergy, "group", ColGroup)
		return 0
	}

	resetFlag(ds, FlagEnergy)

	total := 0
	for _, indices := range groupRows(ds, ColGroup) {
		values := make([]float64, 0, len(indices))
		for _, i := range indices {
			if n, ok := numberAt(ds, i, ColEnergy); ok {
				values = append(values, n)
			}
		}
		if len(values) < minGroupSize {
			continue
		}

		sort.Float64s(values)
		q1 := quantile(values, 0.25)
		q3 := quantile(values, 0.75)
		iqr := q3 - q1
		lower := q1 - iqrFactor*iqr
		upper := q3 + iqrFactor*iqr

		flagged := 0
		for _, i := range indices {
			n, ok := numberAt(ds, i, ColEnergy)
			if !ok {
				continue
			}
			if n < lower || n > upper {
				ds.Set(i, FlagEnergy, dataset.Bool(true))
				flagged++
			}
		}
		if flagged > 0 {
			logger.Info("energy outliers detected", "group", groupKeyAt(ds, indices[0]), "count", flagged)
			total += flagged
		}
	}
	return total
}

// detectThresholdOutliers applies the fixed ceilings for wind speed (both
// the raw km/h and converted m/s columns, each against its own ceiling) and
// temperature. Returns the flagged row counts per class.
func detectThresholdOutliers(ds *dataset.Dataset, logger *slog.Logger) (wind, temp int) {
	windChecks := []struct {
		column  string
		ceiling float64
	}{
		{ColWindSpeed, windCeilingKmh},
		{ColWindSpeedMS, windCeilingMs},
	}

	anyWind := false
	for _, c := range windChecks {
		if ds.HasColumn(c.column) {
			anyWind = true
		}
	}
	if anyWind {
		resetFlag(ds, FlagWind)
		for _, c := range windChecks {
			if !ds.HasColumn(c.column) {
				continue
			}
			for i := 0; i < ds.Len(); i++ {
				if n, ok := numberAt(ds, i, c.column); ok && n > c.ceiling {
					ds.Set(i, FlagWind, dataset.Bool(true))
				}
			}
		}
		wind = countFlagged(ds, FlagWind)
	} else {
		logger.Warn("skipping wind outlier detection, no wind speed column present")
	}

	if ds.HasColumn(ColTemperature) {
		resetFlag(ds, FlagTemp)
		for i := 0; i < ds.Len(); i++ {
			if n, ok := numberAt(ds, i, ColTemperature); ok && (n < tempFloor || n > tempCeiling) {
				ds.Set(i, FlagTemp, dataset.Bool(true))
			}
		}
		temp = countFlagged(ds, FlagTemp)
	} else {
		logger.Warn("skipping temperature outlier detection, column missing", "metric", ColTemperature)
	}
	return wind, temp
}

// Clean repairs the dataset: detection first when no flag columns exist,
// missing-value imputation (group median for energy, fixed 0 for the binary
// outage indicators), then either median substitution for flagged values or
// removal of flagged rows.
func Clean(ds *dataset.Dataset, opts AnomalyOptions, logger *slog.Logger) (*dataset.Dataset, CleanStats) {
	stats := CleanStats{Detected: map[string]int{}, Repaired: map[string]int{}}
	if !hasAnyFlag(ds) {
		_, stats = DetectOutliers(ds, opts, logger)
	}

	stats.Imputed = fillMissing(ds, logger)

	if opts.DropAnomalies {
		stats.Dropped = dropFlagged(ds, logger)
		return ds, stats
	}

	stats.Repaired = repairFlagged(ds, logger)
	return ds, stats
}

// repairSpec ties a metric column to its flag and grouping key. An empty
// group means the whole dataset is one population.
type repairSpec struct {
	metric string
	flag   string
	group  string
}

var repairSpecs = []repairSpec{
	{metric: ColEnergy, flag: FlagEnergy, group: ColGroup},
	{metric: ColWindSpeed, flag: FlagWind},
	{metric: ColWindSpeedMS, flag: FlagWind},
	{metric: ColTemperature, flag: FlagTemp},
}

// repairFlagged replaces each flagged metric value with the median of the
// group's non-flagged rows, computed on the pre-repair dataset. Groups with
// no non-flagged rows are left untouched: there is no reference population
// to repair from. Returns the repaired counts by metric column.
func repairFlagged(ds *dataset.Dataset, logger *slog.Logger) map[string]int {
	repaired := map[string]int{}
	for _, spec := range repairSpecs {
		if !ds.HasColumn(spec.metric) || !ds.HasColumn(spec.flag) {
			continue
		}

		for key, indices := range groupIndices(ds, spec.group) {
			reference := make([]float64, 0, len(indices))
			flagged := make([]int, 0)
			for _, i := range indices {
				if flaggedAt(ds, i, spec.flag) {
					flagged = append(flagged, i)
					continue
				}
				if n, ok := numberAt(ds, i, spec.metric); ok {
					reference = append(reference, n)
				}
			}
			if len(flagged) == 0 || len(reference) == 0 {
				continue
			}

			sort.Float64s(reference)
			m := quantile(reference, 0.5)
			for _, i := range flagged {
				ds.Set(i, spec.metric, dataset.Number(m))
			}
			repaired[spec.metric] += len(flagged)
			logger.Info("outliers repaired", "metric", spec.metric, "group", key, "count", len(flagged))
		}
	}
	return repaired
}

// fillMissing imputes missing values: the group median for energy, a fixed
// 0 for the binary outage indicators (categorical, so median imputation is
// inapplicable). Returns the number of values filled.
func fillMissing(ds *dataset.Dataset, logger *slog.Logger) int {
	filled := 0
	if ds.HasColumn(ColEnergy) && ds.HasColumn(ColGroup) {
		for key, indices := range groupRows(ds, ColGroup) {
			values := make([]float64, 0, len(indices))
			missing := make([]int, 0)
			for _, i := range indices {
				if n, ok := numberAt(ds, i, ColEnergy); ok {
					values = append(values, n)
				} else {
					missing = append(missing, i)
				}
			}
			if len(missing) == 0 || len(values) == 0 {
				continue
			}
			sort.Float64s(values)
			m := quantile(values, 0.5)
			for _, i := range missing {
				ds.Set(i, ColEnergy, dataset.Number(m))
			}
			filled += len(missing)
			logger.Info("missing energy values imputed", "group", key, "count", len(missing))
		}
	}

	for _, column := range outageColumns {
		if !ds.HasColumn(column) {
			continue
		}
		for i := 0; i < ds.Len(); i++ {
			if v, ok := ds.At(i, column); !ok || v.IsNull() {
				ds.Set(i, column, dataset.Number(0))
				filled++
			}
		}
	}
	return filled
}

// dropFlagged removes every row carrying any true anomaly flag, then
// re-derives the position-based turbine identifier for the remainder when
// it was not aliased from station_id. Returns the number of rows removed.
func dropFlagged(ds *dataset.Dataset, logger *slog.Logger) int {
	flags := presentFlags(ds)
	before := ds.Len()

	ds.Filter(func(_ int, r dataset.Row) bool {
		for _, f := range flags {
			if b, ok := r[f].Bool(); ok && b {
				return false
			}
		}
		return true
	})

	dropped := before - ds.Len()
	if dropped > 0 {
		logger.Info("anomalous rows dropped", "count", dropped)
	}

	// Position-derived identifiers must follow the new row order.
	if ds.HasColumn("turbine_id") && !ds.HasColumn("station_id") {
		ds.SetColumn("turbine_id", func(i int) dataset.Value {
			return dataset.Number(float64(i + 1))
		})
	}
	return dropped
}

func mergeFlags(ds *dataset.Dataset) {
	flags := presentFlags(ds)
	ds.SetColumn(FlagMerged, func(i int) dataset.Value {
		for _, f := range flags {
			if flaggedAt(ds, i, f) {
				return dataset.Bool(true)
			}
		}
		return dataset.Bool(false)
	})
}

func presentFlags(ds *dataset.Dataset) []string {
	var flags []string
	for _, f := range []string{FlagEnergy, FlagWind, FlagTemp} {
		if ds.HasColumn(f) {
			flags = append(flags, f)
		}
	}
	return flags
}

func hasAnyFlag(ds *dataset.Dataset) bool {
	return len(presentFlags(ds)) > 0
}

func countFlagged(ds *dataset.Dataset, flag string) int {
	n := 0
	for i := 0; i < ds.Len(); i++ {
		if flaggedAt(ds, i, flag) {
			n++
		}
	}
	return n
}

func resetFlag(ds *dataset.Dataset, flag string) {
	ds.SetColumn(flag, func(int) dataset.Value {
		return dataset.Bool(false)
	})
}

// groupRows partitions row indices by the rendered value of the group
// column. Null and absent group values share the "" partition.
func groupRows(ds *dataset.Dataset, column string) map[string][]int {
	groups := make(map[string][]int)
	for i := 0; i < ds.Len(); i++ {
		key := ""
		if v, ok := ds.At(i, column); ok && !v.IsNull() {
			key = v.String()
		}
		groups[key] = append(groups[key], i)
	}
	return groups
}

// groupIndices is groupRows with an escape hatch: an empty column name
// treats the whole dataset as a single population.
func groupIndices(ds *dataset.Dataset, column string) map[string][]int {
	if column == "" || !ds.HasColumn(column) {
		all := make([]int, ds.Len())
		for i := range all {
			all[i] = i
		}
		return map[string][]int{"": all}
	}
	return groupRows(ds, column)
}

func groupKeyAt(ds *dataset.Dataset, i int) string {
	if v, ok := ds.At(i, ColGroup); ok && !v.IsNull() {
		return v.String()
	}
	return ""
}

func numberAt(ds *dataset.Dataset, i int, column string) (float64, bool) {
	v, ok := ds.At(i, column)
	if !ok {
		return 0, false
	}
	return v.Number()
}

func flaggedAt(ds *dataset.Dataset, i int, flag string) bool {
	v, ok := ds.At(i, flag)
	if !ok {
		return false
	}
	b, _ := v.Bool()
	return b
}

// quantile estimates the p'th quantile of sorted values using linear
// interpolation between closest ranks (the same estimator pandas uses by
// default). values must be sorted ascending and non-empty.
func quantile(values []float64, p float64) float64 {
	if len(values) == 1 {
		return values[0]
	}
	pos := p * float64(len(values)-1)
	lo := int(pos)
	frac := pos - float64(lo)
	if lo+1 >= len(values) {
		return values[len(values)-1]
	}
	return values[lo] + frac*(values[lo+1]-values[lo])
}
