package domain

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

// windDirections maps compass abbreviations to harmonized full names.
var windDirections = map[string]string{
	"N":  "North",
	"S":  "South",
	"E":  "East",
	"W":  "West",
	"NE": "Northeast",
	"NW": "Northwest",
	"SE": "Southeast",
	"SW": "Southwest",
}

// NormalizeWindDirection canonicalizes a compass code: input is trimmed and
// uppercased before the lookup, so "ne" and " s " resolve like "NE" and "S".
// Unmapped codes pass through as the uppercased, trimmed string (the lookup
// form, not the original casing). Null input yields null output.
func NormalizeWindDirection(v dataset.Value) dataset.Value {
	if v.IsNull() {
		return dataset.Null()
	}
	code := strings.ToUpper(strings.TrimSpace(v.String()))
	if full, ok := windDirections[code]; ok {
		return dataset.Text(full)
	}
	return dataset.Text(code)
}

// AddTurbineID derives the turbine_id column: an alias of station_id when
// that column exists, otherwise a 1-based sequential identifier from row
// position. The fallback is position-based, so it is stable across repeated
// runs on the same row order.
func AddTurbineID(ds *dataset.Dataset) *dataset.Dataset {
	if ds.HasColumn("station_id") {
		ds.SetColumn("turbine_id", func(i int) dataset.Value {
			v, ok := ds.At(i, "station_id")
			if !ok {
				return dataset.Null()
			}
			return v
		})
		return ds
	}
	ds.SetColumn("turbine_id", func(i int) dataset.Value {
		return dataset.Number(float64(i + 1))
	})
	return ds
}

// RowKey computes the deterministic per-row unique key: the MD5 hex digest
// of "<ts_utc>-<station_id>", with missing fields serialized as empty
// strings. Identical timestamp+station pairs collide on purpose; the key
// doubles as a deduplication signal.
func RowKey(r dataset.Row) string {
	sum := md5.Sum([]byte(keyField(r, "ts_utc") + "-" + keyField(r, "station_id")))
	return hex.EncodeToString(sum[:])
}

func keyField(r dataset.Row, column string) string {
	v, ok := r[column]
	if !ok || v.IsNull() {
		return ""
	}
	return v.String()
}

// Enrich adds the derived identifier columns without removing existing
// ones: the canonical wind direction (when the source column exists), the
// turbine identifier, the unique row key, and a processed_at stamp from the
// package clock.
func Enrich(ds *dataset.Dataset) *dataset.Dataset {
	if ds.HasColumn("wind_direction") {
		ds.SetColumn("wind_direction_full", func(i int) dataset.Value {
			v, ok := ds.At(i, "wind_direction")
			if !ok {
				return dataset.Null()
			}
			return NormalizeWindDirection(v)
		})
	}

	AddTurbineID(ds)

	ds.SetColumn("unique_id", func(i int) dataset.Value {
		return dataset.Text(RowKey(ds.Row(i)))
	})

	now := clock.Now()
	ds.SetColumn("processed_at", func(int) dataset.Value {
		return dataset.Time(now)
	})

	return ds
}
