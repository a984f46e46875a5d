// Package lunar wraps github.com/6tail/lunar-go to produce the lunar-calendar
// facts the context computer needs: lunar date, zodiac, constellation,
// moon phase, solar term, yi/ji, and solar/lunar festivals. It is the single
// place in the codebase that imports the lunar-go library, so a future
// upgrade or replacement touches one file.
package lunar

import (
	"container/list"
	"fmt"
	"strings"
	"time"

	lunarcal "github.com/6tail/lunar-go/calendar"
)

// DateFacts is everything the context computer needs for a single civil
// date, computed from the lunar-go library.
type DateFacts struct {
	LunarYear     string
	LunarDate     string
	Zodiac        string
	Constellation string
	MoonPhase     string
	FestivalSolar string
	FestivalLunar string
}

// SolarTerm describes the next (or today's) 24-solar-term boundary.
type SolarTerm struct {
	Name     string
	IsToday  bool
	DaysLeft int
}

// Guide is the yi/ji (宜/忌) almanac guidance for a day.
type Guide struct {
	Yi []string
	Ji []string
}

// Festival is a candidate festival surfaced for the holiday merger.
type Festival struct {
	Name     string
	Date     time.Time
	DaysLeft int
}

// Compute returns the lunar-calendar facts for date. Any failure inside the
// underlying library (including a panic — this wrapper is the one place in
// the codebase that tolerates recovering from one, since lunar-go is a
// third-party dependency whose internal edge cases are outside our control)
// yields the zero value rather than propagating, matching the rest of the
// pipeline's "never block on an ancillary fact" posture.
func Compute(date time.Time) (facts DateFacts) {
	defer func() {
		if recover() != nil {
			facts = DateFacts{}
		}
	}()

	solar := lunarcal.NewSolar(date.Year(), int(date.Month()), date.Day(), 0, 0, 0)
	l := solar.GetLunar()

	facts.LunarYear = l.GetYearInChinese()
	facts.LunarDate = fmt.Sprintf("%s%s", l.GetMonthInChinese(), l.GetDayInChinese())
	facts.Zodiac = l.GetYearShengXiao()
	facts.Constellation = solar.GetXingZuo()
	facts.MoonPhase = moonPhaseName(l.GetDay())

	if fs := listStrings(solar.GetFestivals()); len(fs) > 0 {
		facts.FestivalSolar = fs[0]
	}
	if fl := listStrings(l.GetFestivals()); len(fl) > 0 {
		facts.FestivalLunar = fl[0]
	}

	return facts
}

// listStrings flattens the container/list values lunar-go's festival and
// almanac getters return into a plain string slice, skipping any element
// that is not a string.
func listStrings(l *list.List) []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		if s, ok := e.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// moonPhaseName maps a lunar day-of-month (1-30) onto one of the eight
// traditional moon-phase names. This is a local approximation rather than a
// lunar-go API call: the library does not expose a named moon-phase
// function, only the numeric lunar day, so the mapping lives here.
func moonPhaseName(lunarDay int) string {
	switch {
	case lunarDay == 1:
		return "新月"
	case lunarDay < 8:
		return "蛾眉月"
	case lunarDay == 8:
		return "上弦月"
	case lunarDay < 15:
		return "盈凸月"
	case lunarDay <= 16:
		return "满月"
	case lunarDay < 23:
		return "亏凸月"
	case lunarDay == 23:
		return "下弦月"
	default:
		return "残月"
	}
}

// SolarTermInfo returns the current (if today lands exactly on one) or next
// upcoming solar term relative to date.
func SolarTermInfo(date time.Time) (info SolarTerm) {
	defer func() {
		if recover() != nil {
			info = SolarTerm{}
		}
	}()

	today := civil(date)
	candidates := jieQiTable(date)
	// The 24-term cycle straddles the new year, so also pull next year's
	// table to find a term if every one of this year's has already passed.
	for name, solarDate := range jieQiTable(date.AddDate(1, 0, 0)) {
		if existing, ok := candidates[name]; !ok || existing.Before(today) {
			candidates[name] = solarDate
		}
	}

	var bestName string
	var bestDate time.Time
	found := false
	for name, d := range candidates {
		if d.Before(today) {
			continue
		}
		if !found || d.Before(bestDate) {
			bestName, bestDate, found = name, d, true
		}
	}
	if !found {
		return SolarTerm{}
	}

	daysLeft := int(bestDate.Sub(today).Hours() / 24)
	return SolarTerm{Name: bestName, IsToday: daysLeft == 0, DaysLeft: daysLeft}
}

func jieQiTable(date time.Time) map[string]time.Time {
	solar := lunarcal.NewSolar(date.Year(), int(date.Month()), date.Day(), 0, 0, 0)
	l := solar.GetLunar()
	out := map[string]time.Time{}
	for name, s := range l.GetJieQiTable() {
		// The table carries uppercase-English alias keys for the terms that
		// straddle the year boundary; only the Chinese-named entries are real.
		if strings.ContainsAny(name, "ABCDEFGHIJKLMNOPQRSTUVWXYZ_") {
			continue
		}
		out[name] = time.Date(s.GetYear(), time.Month(s.GetMonth()), s.GetDay(), 0, 0, 0, 0, date.Location())
	}
	return out
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GuideFor returns the yi/ji almanac guidance for date.
func GuideFor(date time.Time) (g Guide) {
	defer func() {
		if recover() != nil {
			g = Guide{}
		}
	}()
	solar := lunarcal.NewSolar(date.Year(), int(date.Month()), date.Day(), 0, 0, 0)
	l := solar.GetLunar()
	return Guide{Yi: listStrings(l.GetDayYi()), Ji: listStrings(l.GetDayJi())}
}

// UpcomingSolarFestivals scans forward from date (inclusive) for the next
// occurrences of Gregorian-calendar festivals, used by the holiday merger.
func UpcomingSolarFestivals(date time.Time) []Festival {
	return scanFestivals(date, func(s *lunarcal.Solar, l *lunarcal.Lunar) []string { return listStrings(s.GetFestivals()) })
}

// UpcomingLunarFestivals scans forward from date (inclusive) for the next
// occurrences of lunar-calendar festivals, used by the holiday merger.
func UpcomingLunarFestivals(date time.Time) []Festival {
	return scanFestivals(date, func(s *lunarcal.Solar, l *lunarcal.Lunar) []string { return listStrings(l.GetFestivals()) })
}

// scanFestivals walks up to a year forward from date, collecting the first
// occurrence of every distinct festival name extract yields.
func scanFestivals(date time.Time, extract func(*lunarcal.Solar, *lunarcal.Lunar) []string) (out []Festival) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()

	seen := map[string]bool{}
	today := civil(date)
	for i := 0; i < 366; i++ {
		d := today.AddDate(0, 0, i)
		solar := lunarcal.NewSolar(d.Year(), int(d.Month()), d.Day(), 0, 0, 0)
		l := solar.GetLunar()
		for _, name := range extract(solar, l) {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, Festival{Name: name, Date: d, DaysLeft: i})
		}
	}
	return out
}
