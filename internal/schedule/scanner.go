package schedule

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/patconext-data/pkg/timetable/models"
)

// RolloverThreshold is how far, in minutes, a column may step backwards
// before the scan decides it crossed midnight. Smaller steps are treated as
// jitter from out-of-order express trips.
const RolloverThreshold = 120

// ErrMultipleRollovers reports a column that wraps past midnight twice.
// Only one wrap per matrix is supported, so the rest of the column is dropped.
var ErrMultipleRollovers = errors.New("more than one midnight rollover in a single column")

// Scan yields the departures of station in sel at or after floor, in row
// order. The calendar date of row times is sel.Date; rows after a detected
// rollover land on the following day. Minutes are counted from
// referenceNow. The sequence is lazy: the caller stops it by breaking out
// of the range loop once it has enough.
//
// A station missing from the header yields nothing.
func Scan(sel Selection, station string, floor, referenceNow time.Time, tomorrowPass bool) iter.Seq2[models.Departure, error] {
	return func(yield func(models.Departure, error) bool) {
		col, ok := sel.Matrix.Column(station)
		if !ok {
			return
		}

		day := startOfDay(sel.Date)
		prevMinutes := -1
		dayOffset := 0

		for _, row := range sel.Matrix.Rows() {
			if col >= len(row) {
				continue
			}
			cell := row[col]
			ct, ok := models.ParseClockTime(cell)
			if !ok {
				continue
			}

			minutes := ct.MinutesOfDay()
			if prevMinutes >= 0 && minutes < prevMinutes-RolloverThreshold {
				if dayOffset > 0 {
					yield(models.Departure{}, fmt.Errorf("%w: %s %s at %s (%s)",
						ErrMultipleRollovers, sel.Name, sel.Direction, station, cell))
					return
				}
				dayOffset++
			}
			prevMinutes = minutes

			at := time.Date(day.Year(), day.Month(), day.Day()+dayOffset, ct.Hour, ct.Minute, 0, 0, HomeZone)
			if at.Before(floor) {
				continue
			}

			dep := models.Departure{
				Time:        cell,
				Minutes:     minutesUntil(at, referenceNow),
				IsTomorrow:  tomorrowPass || dayOffset > 0,
				IsCarryover: !tomorrowPass && dayOffset > 0,
				Schedule:    sel.Name,
				ScheduleURL: sel.URL,
				DepartsAt:   at,
			}
			if !yield(dep, nil) {
				return
			}
		}
	}
}

// minutesUntil rounds up, so a train leaving in 30 seconds shows 1 minute
// and one leaving 30 seconds ago, still inside the current minute, shows 0.
func minutesUntil(at, now time.Time) int {
	return int(math.Ceil(at.Sub(now).Minutes()))
}
