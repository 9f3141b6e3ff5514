package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

// energyRow builds a production record for one turbine group.
func energyRow(group string, kwh dataset.Value) dataset.Row {
	return dataset.Row{ColGroup: dataset.Text(group), ColEnergy: kwh}
}

func flagAt(t *testing.T, ds *dataset.Dataset, i int, flag string) bool {
	t.Helper()
	v, ok := ds.At(i, flag)
	require.True(t, ok, "row %d missing flag column %s", i, flag)
	b, ok := v.Bool()
	require.True(t, ok)
	return b
}

func numAt(t *testing.T, ds *dataset.Dataset, i int, column string) float64 {
	t.Helper()
	v, ok := ds.At(i, column)
	require.True(t, ok)
	n, ok := v.Number()
	require.True(t, ok)
	return n
}

func TestDetectOutliers_Energy(t *testing.T) {
	t.Run("grouped iqr flags extremes only", func(t *testing.T) {
		ds := dataset.New()
		for i := 0; i < 10; i++ {
			ds.AppendRow(energyRow("T1", dataset.Number(50)))
		}
		ds.AppendRow(energyRow("T1", dataset.Number(5000)))

		DetectOutliers(ds, AnomalyOptions{}, testLogger())

		for i := 0; i < 10; i++ {
			assert.False(t, flagAt(t, ds, i, FlagEnergy), "row %d", i)
		}
		assert.True(t, flagAt(t, ds, 10, FlagEnergy))
	})

	t.Run("injected outliers all flagged", func(t *testing.T) {
		ds := dataset.New()
		for i := 0; i < 80; i++ {
			ds.AppendRow(energyRow("T1", dataset.Number(90+float64(i)*0.25)))
		}
		for i := 0; i < 20; i++ {
			ds.AppendRow(energyRow("T1", dataset.Number(10000)))
		}

		DetectOutliers(ds, AnomalyOptions{}, testLogger())

		flagged := 0
		for i := 0; i < ds.Len(); i++ {
			if flagAt(t, ds, i, FlagEnergy) {
				flagged++
			}
		}
		assert.Equal(t, 20, flagged)
	})

	t.Run("groups evaluated independently", func(t *testing.T) {
		ds := dataset.New()
		for i := 0; i < 10; i++ {
			ds.AppendRow(energyRow("T1", dataset.Number(50)))
		}
		// 5000 is normal for T2, whose production sits in that range.
		for i := 0; i < 10; i++ {
			ds.AppendRow(energyRow("T2", dataset.Number(4900+float64(i)*20)))
		}
		ds.AppendRow(energyRow("T2", dataset.Number(5000)))

		DetectOutliers(ds, AnomalyOptions{}, testLogger())

		for i := 0; i < ds.Len(); i++ {
			assert.False(t, flagAt(t, ds, i, FlagEnergy), "row %d", i)
		}
	})

	t.Run("small groups skipped", func(t *testing.T) {
		ds := dataset.New()
		ds.AppendRow(energyRow("T1", dataset.Number(10)))
		ds.AppendRow(energyRow("T1", dataset.Number(20)))
		ds.AppendRow(energyRow("T1", dataset.Number(99999)))

		DetectOutliers(ds, AnomalyOptions{}, testLogger())

		for i := 0; i < ds.Len(); i++ {
			assert.False(t, flagAt(t, ds, i, FlagEnergy), "row %d", i)
		}
	})

	t.Run("nulls excluded from quartiles and never flagged", func(t *testing.T) {
		ds := dataset.New()
		for i := 0; i < 10; i++ {
			ds.AppendRow(energyRow("T1", dataset.Number(50)))
		}
		ds.AppendRow(energyRow("T1", dataset.Null()))

		DetectOutliers(ds, AnomalyOptions{}, testLogger())

		assert.False(t, flagAt(t, ds, 10, FlagEnergy))
	})

	t.Run("flags recomputed from scratch", func(t *testing.T) {
		ds := dataset.New()
		for i := 0; i < 10; i++ {
			ds.AppendRow(energyRow("T1", dataset.Number(50)))
		}
		ds.Set(3, FlagEnergy, dataset.Bool(true))

		DetectOutliers(ds, AnomalyOptions{}, testLogger())

		assert.False(t, flagAt(t, ds, 3, FlagEnergy))
	})

	t.Run("missing columns skip detection", func(t *testing.T) {
		ds := dataset.New()
		ds.AppendRow(dataset.Row{"humidity": dataset.Number(55)})

		DetectOutliers(ds, AnomalyOptions{}, testLogger())

		assert.False(t, ds.HasColumn(FlagEnergy))
	})
}

func TestDetectOutliers_Thresholds(t *testing.T) {
	t.Run("wind speed ceilings", func(t *testing.T) {
		ds := dataset.New()
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(100)})
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(160)})
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(150)})
		ds.AppendRow(dataset.Row{ColWindSpeedMS: dataset.Number(30)})
		ds.AppendRow(dataset.Row{ColWindSpeedMS: dataset.Number(45)})

		DetectOutliers(ds, AnomalyOptions{}, testLogger())

		assert.False(t, flagAt(t, ds, 0, FlagWind))
		assert.True(t, flagAt(t, ds, 1, FlagWind))
		assert.False(t, flagAt(t, ds, 2, FlagWind), "ceiling itself is not an outlier")
		assert.False(t, flagAt(t, ds, 3, FlagWind))
		assert.True(t, flagAt(t, ds, 4, FlagWind))
	})

	t.Run("temperature bounds", func(t *testing.T) {
		ds := dataset.New()
		temps := []float64{20, -90, 70, -80, 60}
		for _, c := range temps {
			ds.AppendRow(dataset.Row{ColTemperature: dataset.Number(c)})
		}

		DetectOutliers(ds, AnomalyOptions{}, testLogger())

		expected := []bool{false, true, true, false, false}
		for i, want := range expected {
			assert.Equal(t, want, flagAt(t, ds, i, FlagTemp), "row %d (%.0f°C)", i, temps[i])
		}
	})

	t.Run("merged flag is the or of metric flags", func(t *testing.T) {
		ds := dataset.New()
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(160), ColTemperature: dataset.Number(20)})
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(100), ColTemperature: dataset.Number(70)})
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(100), ColTemperature: dataset.Number(20)})

		DetectOutliers(ds, AnomalyOptions{MergeFlags: true}, testLogger())

		expected := []bool{true, true, false}
		for i, want := range expected {
			v, ok := ds.At(i, FlagMerged)
			require.True(t, ok)
			b, _ := v.Bool()
			assert.Equal(t, want, b, "row %d", i)
		}
	})
}

func TestClean_Repair(t *testing.T) {
	t.Run("flagged energy replaced by non-flagged group median", func(t *testing.T) {
		ds := dataset.New()
		for _, kwh := range []float64{10, 20, 30, 40, 5000} {
			ds.AppendRow(energyRow("T1", dataset.Number(kwh)))
		}

		Clean(ds, AnomalyOptions{}, testLogger())

		// Median of the four non-flagged values, with interpolation.
		assert.Equal(t, 25.0, numAt(t, ds, 4, ColEnergy))
		assert.True(t, flagAt(t, ds, 4, FlagEnergy), "flag survives repair")
		for i, want := range []float64{10, 20, 30, 40} {
			assert.Equal(t, want, numAt(t, ds, i, ColEnergy))
		}
	})

	t.Run("wind and temperature repaired against whole population", func(t *testing.T) {
		ds := dataset.New()
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(10), ColTemperature: dataset.Number(5)})
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(20), ColTemperature: dataset.Number(15)})
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(30), ColTemperature: dataset.Number(25)})
		ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(160), ColTemperature: dataset.Number(70)})

		Clean(ds, AnomalyOptions{}, testLogger())

		assert.Equal(t, 20.0, numAt(t, ds, 3, ColWindSpeed))
		assert.Equal(t, 15.0, numAt(t, ds, 3, ColTemperature))
	})

	t.Run("pre-existing flags respected without re-detection", func(t *testing.T) {
		ds := dataset.New()
		for _, kwh := range []float64{10, 20, 30, 40} {
			ds.AppendRow(energyRow("T1", dataset.Number(kwh)))
		}
		for i := 0; i < ds.Len(); i++ {
			ds.Set(i, FlagEnergy, dataset.Bool(false))
		}
		ds.Set(0, FlagEnergy, dataset.Bool(true))

		Clean(ds, AnomalyOptions{}, testLogger())

		// Median of the non-flagged 20, 30, 40.
		assert.Equal(t, 30.0, numAt(t, ds, 0, ColEnergy))
	})

	t.Run("group with no reference rows left untouched", func(t *testing.T) {
		ds := dataset.New()
		for _, kwh := range []float64{10, 20, 30} {
			ds.AppendRow(energyRow("T1", dataset.Number(kwh)))
		}
		for i := 0; i < ds.Len(); i++ {
			ds.Set(i, FlagEnergy, dataset.Bool(true))
		}

		Clean(ds, AnomalyOptions{}, testLogger())

		for i, want := range []float64{10, 20, 30} {
			assert.Equal(t, want, numAt(t, ds, i, ColEnergy))
		}
	})
}

func TestClean_MissingValues(t *testing.T) {
	t.Run("missing energy imputed with group median", func(t *testing.T) {
		ds := dataset.New()
		for _, kwh := range []float64{10, 20, 30} {
			ds.AppendRow(energyRow("T1", dataset.Number(kwh)))
		}
		ds.AppendRow(energyRow("T1", dataset.Null()))

		Clean(ds, AnomalyOptions{}, testLogger())

		assert.Equal(t, 20.0, numAt(t, ds, 3, ColEnergy))
	})

	t.Run("outage indicators default to zero", func(t *testing.T) {
		ds := dataset.New()
		ds.AppendRow(dataset.Row{
			ColGroup:         dataset.Text("T1"),
			ColEnergy:        dataset.Number(10),
			"arret_planifie": dataset.Null(),
		})
		ds.AppendRow(dataset.Row{
			ColGroup:             dataset.Text("T1"),
			ColEnergy:            dataset.Number(20),
			"arret_planifie":     dataset.Number(1),
			"arret_non_planifie": dataset.Number(0),
		})

		Clean(ds, AnomalyOptions{}, testLogger())

		assert.Equal(t, 0.0, numAt(t, ds, 0, "arret_planifie"))
		assert.Equal(t, 0.0, numAt(t, ds, 0, "arret_non_planifie"))
		assert.Equal(t, 1.0, numAt(t, ds, 1, "arret_planifie"))
	})
}

func TestClean_Drop(t *testing.T) {
	t.Run("flagged rows removed", func(t *testing.T) {
		ds := dataset.New()
		for i := 0; i < 10; i++ {
			ds.AppendRow(energyRow("T1", dataset.Number(50)))
		}
		ds.AppendRow(energyRow("T1", dataset.Number(5000)))

		Clean(ds, AnomalyOptions{DropAnomalies: true}, testLogger())

		assert.Equal(t, 10, ds.Len())
		for i := 0; i < ds.Len(); i++ {
			assert.Equal(t, 50.0, numAt(t, ds, i, ColEnergy))
		}
	})

	t.Run("positional turbine ids reindexed after drop", func(t *testing.T) {
		ds := dataset.New()
		ds.AppendRow(dataset.Row{ColTemperature: dataset.Number(10)})
		ds.AppendRow(dataset.Row{ColTemperature: dataset.Number(70)})
		ds.AppendRow(dataset.Row{ColTemperature: dataset.Number(30)})
		AddTurbineID(ds)

		Clean(ds, AnomalyOptions{DropAnomalies: true}, testLogger())

		require.Equal(t, 2, ds.Len())
		for i := 0; i < ds.Len(); i++ {
			v, _ := ds.At(i, "turbine_id")
			n, _ := v.Number()
			assert.Equal(t, float64(i+1), n)
		}
	})

	t.Run("aliased turbine ids untouched after drop", func(t *testing.T) {
		ds := dataset.New()
		ds.AppendRow(dataset.Row{"station_id": dataset.Text("ST7"), ColTemperature: dataset.Number(70)})
		ds.AppendRow(dataset.Row{"station_id": dataset.Text("ST9"), ColTemperature: dataset.Number(30)})
		AddTurbineID(ds)

		Clean(ds, AnomalyOptions{DropAnomalies: true}, testLogger())

		require.Equal(t, 1, ds.Len())
		v, _ := ds.At(0, "turbine_id")
		s, _ := v.Text()
		assert.Equal(t, "ST9", s)
	})
}

func TestDetectOutliers_ReportsCounts(t *testing.T) {
	ds := dataset.New()
	for i := 0; i < 10; i++ {
		ds.AppendRow(energyRow("T1", dataset.Number(50)))
	}
	ds.AppendRow(energyRow("T1", dataset.Number(5000)))
	ds.AppendRow(dataset.Row{ColWindSpeed: dataset.Number(160)})
	ds.AppendRow(dataset.Row{ColWindSpeedMS: dataset.Number(45)})
	ds.AppendRow(dataset.Row{ColTemperature: dataset.Number(-90)})

	_, stats := DetectOutliers(ds, AnomalyOptions{}, testLogger())

	assert.Equal(t, map[string]int{"energy": 1, "wind": 2, "temperature": 1}, stats.Detected)
	assert.Empty(t, stats.Repaired)
}

func TestClean_ReportsCounts(t *testing.T) {
	t.Run("repair mode", func(t *testing.T) {
		ds := dataset.New()
		for _, kwh := range []float64{10, 20, 30, 40, 5000} {
			ds.AppendRow(energyRow("T1", dataset.Number(kwh)))
		}
		ds.AppendRow(energyRow("T1", dataset.Null()))

		_, stats := Clean(ds, AnomalyOptions{}, testLogger())

		assert.Equal(t, map[string]int{"energy": 1}, stats.Detected)
		assert.Equal(t, map[string]int{ColEnergy: 1}, stats.Repaired)
		assert.Equal(t, 1, stats.Imputed)
		assert.Zero(t, stats.Dropped)
	})

	t.Run("drop mode", func(t *testing.T) {
		ds := dataset.New()
		for i := 0; i < 10; i++ {
			ds.AppendRow(energyRow("T1", dataset.Number(50)))
		}
		ds.AppendRow(energyRow("T1", dataset.Number(5000)))

		_, stats := Clean(ds, AnomalyOptions{DropAnomalies: true}, testLogger())

		assert.Equal(t, 1, stats.Dropped)
		assert.Empty(t, stats.Repaired)
	})
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		p        float64
		expected float64
	}{
		{"median odd", []float64{1, 2, 3}, 0.5, 2},
		{"median even interpolates", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"first quartile", []float64{1, 2, 3, 4, 5}, 0.25, 2},
		{"third quartile", []float64{1, 2, 3, 4, 5}, 0.75, 4},
		{"quartile interpolates", []float64{1, 2, 3, 4}, 0.25, 1.75},
		{"single value", []float64{7}, 0.75, 7},
		{"extremes", []float64{1, 2, 3}, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, quantile(tt.values, tt.p), 1e-9)
		})
	}
}

func TestGroupRows(t *testing.T) {
	ds := dataset.New()
	for i := 0; i < 6; i++ {
		ds.AppendRow(energyRow(fmt.Sprintf("T%d", i%2+1), dataset.Number(float64(i))))
	}
	ds.AppendRow(dataset.Row{ColEnergy: dataset.Number(99)})

	groups := groupRows(ds, ColGroup)

	assert.Len(t, groups, 3)
	assert.Equal(t, []int{0, 2, 4}, groups["T1"])
	assert.Equal(t, []int{1, 3, 5}, groups["T2"])
	assert.Equal(t, []int{6}, groups[""])
}
