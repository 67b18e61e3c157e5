// Package schedule resolves the next departures for a station from a
// timetable snapshot. Nothing here blocks or holds process-wide state: every
// call works on the dataset and the instant it is given.
package schedule

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/benbjohnson/clock"
	"github.com/patconext-data/pkg/timetable/models"
)

// HomeZoneName is the civil time zone the PATCO timetables are written in.
const HomeZoneName = "America/New_York"

// HomeZone is loaded from the embedded tz database, so it is always present.
var HomeZone = mustLoadLocation(HomeZoneName)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("failed to load %s timezone: %v", name, err))
	}
	return loc
}

// Normalizer reports "now" in the railway's home zone regardless of the
// observer's local zone.
type Normalizer struct {
	Clock clock.Clock
}

// NewNormalizer uses the system clock when c is nil.
func NewNormalizer(c clock.Clock) *Normalizer {
	if c == nil {
		c = clock.New()
	}
	return &Normalizer{Clock: c}
}

// Now returns the current instant expressed in HomeZone.
func (n *Normalizer) Now() time.Time {
	return n.Clock.Now().In(HomeZone)
}

// DayTypeOf classifies t by its weekday in t's own location.
func DayTypeOf(t time.Time) models.DayType {
	switch t.Weekday() {
	case time.Sunday:
		return models.Sunday
	case time.Saturday:
		return models.Saturday
	default:
		return models.Weekday
	}
}

// startOfDay returns midnight of t's calendar date in HomeZone.
func startOfDay(t time.Time) time.Time {
	t = t.In(HomeZone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, HomeZone)
}

// addDays moves a calendar date by n days, keeping it at midnight.
func addDays(day time.Time, n int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+n, 0, 0, 0, 0, HomeZone)
}
