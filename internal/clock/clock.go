// Package clock provides the process-wide business and display timezones
// used to determine "today" for caching, scheduling, and holiday matching.
package clock

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var utcOffsetPattern = regexp.MustCompile(`^UTC([+-])(\d{1,2})(?::(\d{2}))?$`)

// Clock carries the two timezones the system distinguishes between:
// business (civil date math, holiday matching, scheduling) and display
// (user-visible timestamps). They are deliberately never mixed.
type Clock struct {
	businessTZ *time.Location
	displayTZ  *time.Location
}

// New resolves businessSpec and displaySpec into a Clock. businessSpec must
// not be the literal "local"; displaySpec may be.
func New(businessSpec, displaySpec string) (*Clock, error) {
	if businessSpec == "local" {
		return nil, fmt.Errorf("clock: business timezone must not be %q", "local")
	}

	biz, err := ParseTimezone(businessSpec)
	if err != nil {
		biz = mustLoad("Asia/Shanghai")
	}

	var disp *time.Location
	if displaySpec == "local" {
		disp = time.Local
	} else {
		disp, err = ParseTimezone(displaySpec)
		if err != nil {
			disp = time.UTC
		}
	}

	return &Clock{businessTZ: biz, displayTZ: disp}, nil
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseTimezone accepts an IANA zone name or a UTC±H[H][:MM] offset string.
func ParseTimezone(spec string) (*time.Location, error) {
	if m := utcOffsetPattern.FindStringSubmatch(spec); m != nil {
		sign := 1
		if m[1] == "-" {
			sign = -1
		}
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || (hours == 14 && minutes > 0) {
			return nil, fmt.Errorf("clock: offset hours out of range: %s", spec)
		}
		if minutes > 59 {
			return nil, fmt.Errorf("clock: offset minutes out of range: %s", spec)
		}
		if sign < 0 && hours > 12 {
			return nil, fmt.Errorf("clock: negative offset out of range: %s", spec)
		}
		totalSeconds := sign * (hours*3600 + minutes*60)
		return time.FixedZone(spec, totalSeconds), nil
	}

	loc, err := time.LoadLocation(spec)
	if err != nil {
		return nil, fmt.Errorf("clock: unrecognised timezone %q: %w", spec, err)
	}
	return loc, nil
}

// BusinessNow returns the current instant in the business timezone.
func (c *Clock) BusinessNow() time.Time {
	return time.Now().In(c.businessTZ)
}

// BusinessToday returns today's civil date in the business timezone,
// truncated to midnight in that zone.
func (c *Clock) BusinessToday() time.Time {
	now := c.BusinessNow()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.businessTZ)
}

// DisplayNow returns the current instant in the display timezone.
func (c *Clock) DisplayNow() time.Time {
	return time.Now().In(c.displayTZ)
}

// BusinessLocation exposes the resolved business timezone.
func (c *Clock) BusinessLocation() *time.Location { return c.businessTZ }

// DisplayLocation exposes the resolved display timezone.
func (c *Clock) DisplayLocation() *time.Location { return c.displayTZ }
