package lunar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeDoesNotPanicAndFillsCoreFields(t *testing.T) {
	facts := Compute(date(2026, time.February, 17))

	assert.NotEmpty(t, facts.LunarYear)
	assert.NotEmpty(t, facts.LunarDate)
	assert.NotEmpty(t, facts.Zodiac)
	assert.NotEmpty(t, facts.Constellation)
	assert.NotEmpty(t, facts.MoonPhase)
}

func TestSolarTermInfoNeverNegative(t *testing.T) {
	info := SolarTermInfo(date(2026, time.July, 29))

	assert.GreaterOrEqual(t, info.DaysLeft, 0)
	if info.DaysLeft == 0 {
		assert.True(t, info.IsToday)
	}
}

func TestGuideForReturnsWithoutPanicking(t *testing.T) {
	g := GuideFor(date(2026, time.March, 1))

	// The underlying almanac may return any number of entries; the context
	// computer (not this package) is responsible for truncating to 4 and
	// supplying defaults when empty.
	assert.NotNil(t, g)
}

func TestUpcomingFestivalsAreSortedByDaysLeftAndWithinAYear(t *testing.T) {
	for _, fs := range [][]Festival{
		UpcomingSolarFestivals(date(2026, time.January, 1)),
		UpcomingLunarFestivals(date(2026, time.January, 1)),
	} {
		prev := -1
		seen := map[string]bool{}
		for _, f := range fs {
			assert.False(t, seen[f.Name], "festival %q should appear once", f.Name)
			seen[f.Name] = true
			assert.GreaterOrEqual(t, f.DaysLeft, prev)
			assert.Less(t, f.DaysLeft, 366)
			prev = f.DaysLeft
		}
	}
}
