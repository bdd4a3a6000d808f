package temporal

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed calendar.yaml
var defaultCalendarYAML []byte

// Holiday is a named demand spike. Lift is the peak multiplier applied
// on the holiday itself; demand ramps linearly up over RampDays before
// and decays linearly over DecayDays after.
type Holiday struct {
	Name      string `yaml:"name"`
	Month     int    `yaml:"month"`
	Day       int    `yaml:"day"`
	Lift      float64 `yaml:"lift"`
	RampDays  int    `yaml:"ramp_days"`
	DecayDays int    `yaml:"decay_days"`
}

// Calendar holds the named holidays for a run.
type Calendar struct {
	Holidays []Holiday `yaml:"holidays"`
}

// DefaultCalendar returns the embedded holiday calendar.
func DefaultCalendar() (Calendar, error) {
	return parseCalendar(defaultCalendarYAML)
}

// LoadCalendar reads a calendar from a YAML file.
func LoadCalendar(path string) (Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calendar{}, fmt.Errorf("read calendar %s: %w", path, err)
	}
	return parseCalendar(data)
}

func parseCalendar(data []byte) (Calendar, error) {
	var cal Calendar
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return Calendar{}, fmt.Errorf("parse calendar: %w", err)
	}
	for _, h := range cal.Holidays {
		if h.Month < 1 || h.Month > 12 || h.Day < 1 || h.Day > 31 {
			return Calendar{}, fmt.Errorf("calendar: holiday %q has invalid date %d/%d", h.Name, h.Month, h.Day)
		}
		if h.Lift < 1 {
			return Calendar{}, fmt.Errorf("calendar: holiday %q lift must be >= 1, got %g", h.Name, h.Lift)
		}
	}
	return cal, nil
}

// factorOn returns the holiday multiplier for ts, or 1.0 outside every
// lift/decay window.
func (c Calendar) factorOn(ts time.Time) float64 {
	factor := 1.0
	// Distance is measured in whole calendar days so the holiday itself
	// carries full lift for all 24 hours.
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range c.Holidays {
		// Check the occurrence in this year and the adjacent years so
		// windows spanning New Year behave.
		for _, year := range []int{ts.Year() - 1, ts.Year(), ts.Year() + 1} {
			peak := time.Date(year, time.Month(h.Month), h.Day, 0, 0, 0, 0, time.UTC)
			days := day.Sub(peak).Hours() / 24
			var frac float64
			switch {
			case days >= 0 && h.DecayDays > 0 && days <= float64(h.DecayDays):
				frac = 1 - days/float64(h.DecayDays)
			case days < 0 && h.RampDays > 0 && -days <= float64(h.RampDays):
				frac = 1 + days/float64(h.RampDays)
			case days == 0:
				frac = 1
			}
			if frac > 0 {
				f := 1 + (h.Lift-1)*frac
				if f > factor {
					factor = f
				}
			}
		}
	}
	return factor
}
