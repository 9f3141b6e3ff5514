package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

func TestReader_Extract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "production.csv")
	content := "date;turbin_id;energie_kWh;arret_planifie;arret_non_planifie\n" +
		"2025-01-01;T001;24800.5;0;0\n" +
		"2025-01-01;T002;;1;0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ds, err := NewReader(path).Extract(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, ds.Len())
	assert.Equal(t, []string{"date", "turbin_id", "energie_kWh", "arret_planifie", "arret_non_planifie"}, ds.Columns())

	v, _ := ds.At(0, "energie_kWh")
	n, ok := v.Number()
	require.True(t, ok)
	assert.Equal(t, 24800.5, n)

	v, _ = ds.At(0, "turbin_id")
	s, ok := v.Text()
	require.True(t, ok)
	assert.Equal(t, "T001", s)

	// Empty cell reads back as null, not zero.
	v, _ = ds.At(1, "energie_kWh")
	assert.True(t, v.IsNull())

	v, _ = ds.At(1, "arret_planifie")
	n, _ = v.Number()
	assert.Equal(t, 1.0, n)
}

func TestReader_Extract_MissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "nope.csv")).Extract(context.Background())
	require.Error(t, err)
}

func TestReader_Extract_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := NewReader(path).Extract(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestWriter_Load(t *testing.T) {
	ds := dataset.New()
	ds.AppendRow(dataset.Row{})
	ds.Set(0, "date", dataset.Text("2025-01-01"))
	ds.Set(0, "turbin_id", dataset.Text("T001"))
	ds.Set(0, "energie_kWh", dataset.Number(24800.5))
	ds.AppendRow(dataset.Row{})
	ds.Set(1, "date", dataset.Text("2025-01-01"))
	ds.Set(1, "turbin_id", dataset.Text("T002"))
	ds.Set(1, "energie_kWh", dataset.Null())

	path := filepath.Join(t.TempDir(), "out", "cleaned.csv")
	require.NoError(t, NewWriter(path).Load(context.Background(), ds))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"date;turbin_id;energie_kWh\n"+
			"2025-01-01;T001;24800.5\n"+
			"2025-01-01;T002;\n",
		string(data))
}

func TestWriter_ReaderRoundTrip(t *testing.T) {
	gen := NewGenerator(7)
	original, err := gen.Generate(2025, time.March)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "roundtrip.csv")
	require.NoError(t, NewWriter(path).Load(context.Background(), original))

	restored, err := NewReader(path).Extract(context.Background())
	require.NoError(t, err)

	require.Equal(t, original.Len(), restored.Len())
	assert.Equal(t, original.Columns(), restored.Columns())

	for i := 0; i < original.Len(); i++ {
		for _, column := range original.Columns() {
			want, _ := original.At(i, column)
			got, _ := restored.At(i, column)
			assert.Equal(t, want.String(), got.String(), "row %d column %s", i, column)
		}
	}
}

func TestGenerator_Generate(t *testing.T) {
	gen := NewGenerator(42)
	ds, err := gen.Generate(2025, time.February)
	require.NoError(t, err)

	// 28 days, two turbines.
	assert.Equal(t, 56, ds.Len())
	assert.Equal(t, []string{"date", "turbin_id", "energie_kWh", "arret_planifie", "arret_non_planifie"}, ds.Columns())

	v, _ := ds.At(0, "date")
	s, _ := v.Text()
	assert.Equal(t, "2025-02-01", s)

	v, _ = ds.At(ds.Len()-1, "date")
	s, _ = v.Text()
	assert.Equal(t, "2025-02-28", s)

	maxDaily := 3.2 * 24 * 1000 * 1.03
	for i := 0; i < ds.Len(); i++ {
		planned := outageAt(t, ds, i, "arret_planifie")
		unplanned := outageAt(t, ds, i, "arret_non_planifie")
		assert.False(t, planned == 1 && unplanned == 1, "row %d: outages must be mutually exclusive", i)

		v, _ := ds.At(i, "energie_kWh")
		if v.IsNull() {
			continue
		}
		kwh, ok := v.Number()
		require.True(t, ok)
		assert.GreaterOrEqual(t, kwh, 0.0)
		assert.LessOrEqual(t, kwh, maxDaily)
		if planned == 1 || unplanned == 1 {
			assert.Zero(t, kwh, "row %d: outage day must produce nothing", i)
		}
	}
}

// outageAt reads a 0/1 indicator, treating null as 0 for assertions.
func outageAt(t *testing.T, ds *dataset.Dataset, i int, column string) int {
	t.Helper()
	v, ok := ds.At(i, column)
	require.True(t, ok)
	if v.IsNull() {
		return 0
	}
	n, ok := v.Number()
	require.True(t, ok)
	return int(n)
}

func TestGenerator_SameSeedSameOutput(t *testing.T) {
	a, err := NewGenerator(99).Generate(2025, time.October)
	require.NoError(t, err)
	b, err := NewGenerator(99).Generate(2025, time.October)
	require.NoError(t, err)

	require.Equal(t, a.Len(), b.Len())
	for i := 0; i < a.Len(); i++ {
		for _, column := range a.Columns() {
			av, _ := a.At(i, column)
			bv, _ := b.At(i, column)
			assert.Equal(t, av, bv, "row %d column %s", i, column)
		}
	}
}

func TestGenerator_DifferentSeedsDiffer(t *testing.T) {
	a, err := NewGenerator(1).Generate(2025, time.October)
	require.NoError(t, err)
	b, err := NewGenerator(2).Generate(2025, time.October)
	require.NoError(t, err)

	differs := false
	for i := 0; i < a.Len() && !differs; i++ {
		av, _ := a.At(i, "energie_kWh")
		bv, _ := b.At(i, "energie_kWh")
		if av != bv {
			differs = true
		}
	}
	assert.True(t, differs)
}

func TestGenerator_InvalidInput(t *testing.T) {
	g := NewGenerator(1)

	_, err := g.Generate(2025, time.Month(13))
	require.Error(t, err)

	_, err = g.Generate(0, time.May)
	require.Error(t, err)
}
