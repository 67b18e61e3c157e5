package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// timeCellPattern matches timetable cells such as "4:05A" or "12:45P".
var timeCellPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})([AP])$`)

// ClockTime is a wall-clock time of day parsed from a timetable cell.
// Hour is on the 24-hour clock.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses a 12-hour timetable cell. A cell without the A/P
// suffix, or with an out of range hour or minute, is not a time and
// returns ok=false; callers treat it as "no stop", never as midnight.
func ParseClockTime(cell string) (ClockTime, bool) {
	m := timeCellPattern.FindStringSubmatch(strings.TrimSpace(cell))
	if m == nil {
		return ClockTime{}, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour < 1 || hour > 12 || minute > 59 {
		return ClockTime{}, false
	}

	switch {
	case m[3] == "P" && hour != 12:
		hour += 12
	case m[3] == "A" && hour == 12:
		hour = 0
	}

	return ClockTime{Hour: hour, Minute: minute}, true
}

// MinutesOfDay returns the number of minutes since midnight.
func (ct ClockTime) MinutesOfDay() int {
	return ct.Hour*60 + ct.Minute
}

// Format renders the time for display, e.g. "04:05 AM".
func (ct ClockTime) Format() string {
	suffix := "AM"
	hour := ct.Hour
	if hour >= 12 {
		suffix = "PM"
	}
	hour = hour % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%02d:%02d %s", hour, ct.Minute, suffix)
}

// Cell renders the time back in timetable cell form, e.g. "4:05A".
func (ct ClockTime) Cell() string {
	suffix := "A"
	if ct.Hour >= 12 {
		suffix = "P"
	}
	hour := ct.Hour % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d%s", hour, ct.Minute, suffix)
}

func (ct ClockTime) String() string {
	return ct.Format()
}
