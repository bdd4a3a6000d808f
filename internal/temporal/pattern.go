// Package temporal implements the multiplicative demand factor model.
//
// Factor is a pure function of timestamp and static configuration:
// seasonal curve x holiday lift x day-of-week x daypart, gated to zero
// outside store operating hours. Purity matters: the factor feeds the
// seeded arrival draws, so any hidden state here would break
// reproducible runs.
package temporal

import (
	"math"
	"time"

	"github.com/openmart/retailgen/internal/model"
)

// Daypart is a named sub-day band with its own demand multiplier.
// Bands are half-open hour ranges [Start, End).
type Daypart struct {
	Name       string
	Start      int
	End        int
	Multiplier float64
}

// Pattern combines the temporal curves. Construct with NewPattern;
// the zero value has no curves and returns 0 everywhere.
type Pattern struct {
	cal       Calendar
	dayOfWeek [7]float64
	dayparts  []Daypart

	// seasonalAmplitude and seasonalPeakDay shape the smooth annual
	// cycle: demand peaks seasonalAmplitude above baseline around the
	// peak day of year and dips symmetrically half a year away.
	seasonalAmplitude float64
	seasonalPeakDay   float64
}

// defaultDayOfWeek indexes by time.Weekday (Sunday = 0). Weekend lift,
// slow Monday/Tuesday.
var defaultDayOfWeek = [7]float64{1.25, 0.85, 0.85, 0.95, 1.0, 1.15, 1.35}

// defaultDayparts model the morning ramp, lunch rush, afternoon lull,
// and after-work peak.
var defaultDayparts = []Daypart{
	{Name: "early", Start: 0, End: 9, Multiplier: 0.5},
	{Name: "morning", Start: 9, End: 11, Multiplier: 0.9},
	{Name: "lunch", Start: 11, End: 14, Multiplier: 1.4},
	{Name: "afternoon", Start: 14, End: 17, Multiplier: 1.0},
	{Name: "after_work", Start: 17, End: 20, Multiplier: 1.5},
	{Name: "evening", Start: 20, End: 24, Multiplier: 0.7},
}

// NewPattern builds a pattern with the default curves and the given
// holiday calendar.
func NewPattern(cal Calendar) *Pattern {
	return &Pattern{
		cal:               cal,
		dayOfWeek:         defaultDayOfWeek,
		dayparts:          defaultDayparts,
		seasonalAmplitude: 0.18,
		seasonalPeakDay:   340, // early December
	}
}

// Factor returns the multiplicative demand factor at ts for a store
// with the given operating hours. Returns 0 outside open hours.
// Deterministic: same inputs always produce the same factor.
func (p *Pattern) Factor(ts time.Time, hours model.OperatingHours) float64 {
	hour := ts.Hour()
	if !hours.Contains(hour) {
		return 0
	}
	return p.Seasonal(ts) * p.cal.factorOn(ts) * p.dayOfWeek[ts.Weekday()] * p.daypart(hour)
}

// Seasonal returns the smooth annual cycle multiplier at ts.
func (p *Pattern) Seasonal(ts time.Time) float64 {
	day := float64(ts.YearDay())
	phase := 2 * math.Pi * (day - p.seasonalPeakDay) / 365.25
	return 1 + p.seasonalAmplitude*math.Cos(phase)
}

// Holiday returns the holiday lift multiplier at ts (1.0 outside every
// holiday window).
func (p *Pattern) Holiday(ts time.Time) float64 {
	return p.cal.factorOn(ts)
}

func (p *Pattern) daypart(hour int) float64 {
	for _, d := range p.dayparts {
		if hour >= d.Start && hour < d.End {
			return d.Multiplier
		}
	}
	return 1
}
