package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmart/retailgen/internal/model"
)

var testHours = model.OperatingHours{Open: 8, Close: 21}

func mustPattern(t *testing.T) *Pattern {
	t.Helper()
	cal, err := DefaultCalendar()
	require.NoError(t, err)
	return NewPattern(cal)
}

func TestFactor_ZeroOutsideOperatingHours(t *testing.T) {
	p := mustPattern(t)

	closed := time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)
	assert.Zero(t, p.Factor(closed, testHours))

	lateNight := time.Date(2024, 3, 5, 22, 0, 0, 0, time.UTC)
	assert.Zero(t, p.Factor(lateNight, testHours))

	open := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	assert.Greater(t, p.Factor(open, testHours), 0.0)
}

func TestFactor_Deterministic(t *testing.T) {
	p := mustPattern(t)
	ts := time.Date(2024, 7, 3, 17, 0, 0, 0, time.UTC)

	first := p.Factor(ts, testHours)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.Factor(ts, testHours))
	}
}

func TestFactor_LunchBeatsAfternoonLull(t *testing.T) {
	p := mustPattern(t)
	day := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)

	lunch := p.Factor(day.Add(12*time.Hour), testHours)
	lull := p.Factor(day.Add(15*time.Hour), testHours)
	assert.Greater(t, lunch, lull)
}

func TestFactor_WeekendLift(t *testing.T) {
	p := mustPattern(t)

	// Same hour, adjacent days in a holiday-free week.
	sat := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	tue := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	assert.Greater(t, p.Factor(sat, testHours), p.Factor(tue, testHours))
}

func TestHoliday_BlackFridaySpike(t *testing.T) {
	p := mustPattern(t)

	blackFriday := time.Date(2024, 11, 28, 12, 0, 0, 0, time.UTC)
	ordinary := time.Date(2024, 11, 4, 12, 0, 0, 0, time.UTC)
	assert.Greater(t, p.Holiday(blackFriday), 2.0)
	assert.Equal(t, 1.0, p.Holiday(ordinary))
}

func TestHoliday_RampAndDecay(t *testing.T) {
	p := mustPattern(t)

	// Christmas has a 10-day ramp: lift should grow approaching the day.
	dec10 := time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)
	dec23 := time.Date(2024, 12, 23, 0, 0, 0, 0, time.UTC)
	dec25 := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	require.Greater(t, p.Holiday(dec23), p.Holiday(dec10))
	require.Greater(t, p.Holiday(dec25), p.Holiday(dec23))

	// No decay configured: the day after drops back to baseline.
	dec27 := time.Date(2024, 12, 27, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, p.Holiday(dec27))
}

func TestSeasonal_SmoothBounds(t *testing.T) {
	p := mustPattern(t)
	for day := 0; day < 365; day++ {
		ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, day)
		s := p.Seasonal(ts)
		require.Greater(t, s, 0.7, "day %d", day)
		require.Less(t, s, 1.3, "day %d", day)
	}
}

func TestLoadCalendar_RejectsBadLift(t *testing.T) {
	_, err := parseCalendar([]byte("holidays:\n  - name: bad\n    month: 1\n    day: 1\n    lift: 0.5\n"))
	assert.ErrorContains(t, err, "lift")
}

func TestLoadCalendar_RejectsBadDate(t *testing.T) {
	_, err := parseCalendar([]byte("holidays:\n  - name: bad\n    month: 13\n    day: 1\n    lift: 1.5\n"))
	assert.ErrorContains(t, err, "invalid date")
}
