package csvfile

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

// Rated capacities in MW per turbine.
var ratedMW = map[string]float64{
	"T001": 3.2,
	"T002": 2.8,
}

var turbineOrder = []string{"T001", "T002"}

// monthlyCFMean holds mean capacity factors per month, northern-hemisphere
// seasonality.
var monthlyCFMean = map[time.Month]float64{
	time.January: 0.42, time.February: 0.40, time.March: 0.38, time.April: 0.35,
	time.May: 0.30, time.June: 0.28, time.July: 0.25, time.August: 0.27,
	time.September: 0.32, time.October: 0.36, time.November: 0.40, time.December: 0.43,
}

// Generation probabilities.
const (
	plannedOutageRate   = 0.02
	unplannedOutageRate = 0.01
	missingEnergyRate   = 0.05
	missingOutageRate   = 0.02
)

// Generator produces a synthetic month of daily per-turbine production.
// Runs with the same seed produce identical datasets.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator seeded for reproducibility.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate builds one row per day per turbine for the given month, with
// simulated outages and injected missing values.
func (g *Generator) Generate(year int, month time.Month) (*dataset.Dataset, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("month %d out of range", month)
	}
	if year < 1 {
		return nil, fmt.Errorf("year %d out of range", year)
	}

	days := daysIn(year, month)
	ds := dataset.New()

	i := 0
	for day := 1; day <= days; day++ {
		date := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
		for _, turbine := range turbineOrder {
			planned, unplanned := g.simulateOutages()
			energy := g.dailyEnergyKWh(turbine, month, planned, unplanned)

			ds.AppendRow(dataset.Row{})
			ds.Set(i, "date", dataset.Text(date))
			ds.Set(i, "turbin_id", dataset.Text(turbine))
			ds.Set(i, "energie_kWh", g.maybeMissing(dataset.Number(energy), missingEnergyRate))
			ds.Set(i, "arret_planifie", g.maybeMissing(dataset.Number(float64(planned)), missingOutageRate))
			ds.Set(i, "arret_non_planifie", g.maybeMissing(dataset.Number(float64(unplanned)), missingOutageRate))
			i++
		}
	}
	return ds, nil
}

// simulateOutages draws the daily outage indicators. Planned and unplanned
// outages are mutually exclusive.
func (g *Generator) simulateOutages() (planned, unplanned int) {
	if g.rng.Float64() < plannedOutageRate {
		return 1, 0
	}
	if g.rng.Float64() < unplannedOutageRate {
		return 0, 1
	}
	return 0, 0
}

// dailyEnergyKWh samples a plausible daily production: the month's mean
// capacity factor with gaussian spread, scaled by rated power, with a small
// uniform jitter. Outage days produce nothing.
func (g *Generator) dailyEnergyKWh(turbine string, month time.Month, planned, unplanned int) float64 {
	if planned == 1 || unplanned == 1 {
		return 0
	}

	cf := g.rng.NormFloat64()*0.10 + monthlyCFMean[month]
	cf = clamp(cf, 0, 1)

	jitter := 0.97 + g.rng.Float64()*0.06
	return cf * ratedMW[turbine] * 24 * 1000 * jitter
}

func (g *Generator) maybeMissing(v dataset.Value, rate float64) dataset.Value {
	if g.rng.Float64() < rate {
		return dataset.Null()
	}
	return v
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
