// Package holiday implements the multi-year holiday aggregator: merging
// rest-day/make-up-workday data with solar and lunar festival generators,
// normalising and de-duplicating names, and computing countdowns.
package holiday

import (
	"sort"
	"time"
)

// RawDay is one day entry from an upstream year document.
type RawDay struct {
	Name     string
	Date     time.Time
	IsOffDay bool
}

// Holiday is an aggregated, de-duplicated holiday or make-up workday entry.
type Holiday struct {
	Name           string
	StartDate      time.Time
	EndDate        time.Time
	Duration       int
	DaysLeft       int
	IsLegalHoliday bool
	IsOffDay       bool
}

// legalHolidayWhitelist is never suffix-stripped during normalisation.
var legalHolidayWhitelist = map[string]bool{
	"春节": true, "元旦": true, "清明": true, "端午": true,
	"中秋": true, "国庆": true, "劳动": true,
}

// normalizeSuffixes are stripped in order, longest match first within the
// slice position (the first one found that matches the suffix wins).
var normalizeSuffixes = []string{"节假期", "假期", "节日", "节"}

// NormalizeName reduces a holiday or festival name to its comparable core:
// whitelist entries pass through unchanged; otherwise the longest matching
// suffix is stripped, and the result is only accepted if its rune length is
// >= 2 or it is itself a whitelisted core.
func NormalizeName(name string) string {
	if legalHolidayWhitelist[name] {
		return name
	}
	runes := []rune(name)
	for _, suffix := range normalizeSuffixes {
		suffixRunes := []rune(suffix)
		if len(runes) <= len(suffixRunes) {
			continue
		}
		if string(runes[len(runes)-len(suffixRunes):]) == suffix {
			core := string(runes[:len(runes)-len(suffixRunes)])
			if len([]rune(core)) >= 2 || legalHolidayWhitelist[core] {
				return core
			}
			return name
		}
	}
	return name
}

// Aggregate merges raw off-day/work-day entries from (up to) three year
// documents into a sorted list of Holiday groups plus make-up workdays.
func Aggregate(days []RawDay, today time.Time) []Holiday {
	offDays := make([]RawDay, 0, len(days))
	workDays := make([]RawDay, 0, len(days))
	for _, d := range days {
		if d.IsOffDay {
			offDays = append(offDays, d)
		} else {
			workDays = append(workDays, d)
		}
	}
	sort.Slice(offDays, func(i, j int) bool { return offDays[i].Date.Before(offDays[j].Date) })

	var groups []Holiday
	for i := 0; i < len(offDays); {
		j := i + 1
		for j < len(offDays) &&
			offDays[j].Name == offDays[i].Name &&
			offDays[j].Date.Sub(offDays[j-1].Date) == 24*time.Hour {
			j++
		}
		start := offDays[i].Date
		end := offDays[j-1].Date
		if !end.Before(today) {
			groups = append(groups, Holiday{
				Name:           offDays[i].Name,
				StartDate:      start,
				EndDate:        end,
				Duration:       int(end.Sub(start).Hours()/24) + 1,
				DaysLeft:       daysLeft(start, today),
				IsLegalHoliday: true,
				IsOffDay:       true,
			})
		}
		i = j
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].DaysLeft < groups[j].DaysLeft })

	var makeups []Holiday
	for _, d := range workDays {
		if sameDate(d.Date, today) {
			makeups = append(makeups, Holiday{
				Name:           d.Name + "（补班）",
				StartDate:      today,
				EndDate:        today,
				Duration:       1,
				DaysLeft:       0,
				IsLegalHoliday: true,
				IsOffDay:       false,
			})
		}
	}

	result := make([]Holiday, 0, len(makeups)+len(groups))
	result = append(result, makeups...)
	result = append(result, groups...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].DaysLeft < result[j].DaysLeft })
	return result
}

func daysLeft(start, today time.Time) int {
	d := int(start.Sub(today).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func sameDate(a, b time.Time) bool {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	return ya == yb && ma == mb && da == db
}

// Festival is a candidate solar or lunar festival to merge against the
// legal-holiday aggregation. Priority is lower-wins: legal (handled
// separately) > lunar > solar, so lunar festivals should be merged before
// solar ones.
type Festival struct {
	Name     string
	Date     time.Time
	DaysLeft int
}

// MergeFestivals appends festivals whose normalised name does not collide
// with an already-kept entry's normalised name, honouring legal > lunar >
// solar priority by the caller's merge order (legal holidays first, then
// lunar festivals, then solar festivals), and truncates to at most 10.
func MergeFestivals(kept []Holiday, festivals []Festival) []Holiday {
	keptNames := make(map[string]bool, len(kept))
	for _, h := range kept {
		keptNames[NormalizeName(h.Name)] = true
	}

	result := append([]Holiday(nil), kept...)
	for _, f := range festivals {
		norm := NormalizeName(f.Name)
		if keptNames[norm] {
			continue
		}
		keptNames[norm] = true
		result = append(result, Holiday{
			Name:      f.Name,
			StartDate: f.Date,
			EndDate:   f.Date,
			Duration:  1,
			DaysLeft:  f.DaysLeft,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].DaysLeft < result[j].DaysLeft })
	if len(result) > 10 {
		result = result[:10]
	}
	return result
}
