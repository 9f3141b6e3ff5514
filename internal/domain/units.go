package domain

import "github.com/energitic/windfarm-etl/internal/dataset"

// Physical unit conversions. Each takes and returns a dataset.Value so null
// propagates: missing input yields null output, never zero.

// CelsiusToKelvin converts °C to K (adds 273.15).
func CelsiusToKelvin(v dataset.Value) dataset.Value {
	c, ok := v.Number()
	if !ok {
		return dataset.Null()
	}
	return dataset.Number(c + 273.15)
}

// KmhToMs converts km/h to m/s (divides by 3.6).
func KmhToMs(v dataset.Value) dataset.Value {
	kmh, ok := v.Number()
	if !ok {
		return dataset.Null()
	}
	return dataset.Number(kmh / 3.6)
}

// KwhToMwh converts kWh to MWh (divides by 1000).
func KwhToMwh(v dataset.Value) dataset.Value {
	kwh, ok := v.Number()
	if !ok {
		return dataset.Null()
	}
	return dataset.Number(kwh / 1000)
}

// unitConversions lists the recognized physical-quantity columns and the
// derived column each produces.
var unitConversions = []struct {
	source  string
	derived string
	convert func(dataset.Value) dataset.Value
}{
	{"temperature", "temperature_K", CelsiusToKelvin},
	{"wind_speed", "wind_speed_ms", KmhToMs},
	{"energie_kWh", "energie_mwh", KwhToMwh},
}

// ConvertUnits adds a derived column in the target unit for each recognized
// source column, leaving the source untouched. Derived columns are always
// recomputed from the source, so re-running overwrites rather than
// accumulates. Absent source columns are skipped without error.
func ConvertUnits(ds *dataset.Dataset) *dataset.Dataset {
	for _, c := range unitConversions {
		if !ds.HasColumn(c.source) {
			continue
		}
		ds.SetColumn(c.derived, func(i int) dataset.Value {
			v, ok := ds.At(i, c.source)
			if !ok {
				return dataset.Null()
			}
			return c.convert(v)
		})
	}
	return ds
}
