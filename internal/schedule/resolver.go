package schedule

import (
	"time"

	"github.com/patconext-data/internal/common/logger"
	"github.com/patconext-data/internal/common/metrics"
	"github.com/patconext-data/pkg/timetable/models"
)

// Resolver assembles the next departures from today's timetable and, when
// today runs out, tomorrow's. It never looks further than two timetables.
type Resolver struct {
	normalizer *Normalizer
	selector   *Selector
	logger     logger.Logger
}

func NewResolver(normalizer *Normalizer, selector *Selector, log logger.Logger) *Resolver {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if selector == nil {
		selector = NewSelector()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		normalizer: normalizer,
		selector:   selector,
		logger:     log,
	}
}

// Now returns the resolver's reference instant in the home zone.
func (r *Resolver) Now() time.Time {
	return r.normalizer.Now()
}

// ResolveDirection returns up to count departures from station in dir,
// or nil when neither today nor tomorrow has a train to offer.
func (r *Resolver) ResolveDirection(ds *models.Dataset, station string, dir models.Direction, count int) *models.ResolvedDirection {
	return r.ResolveAt(ds, station, dir, count, r.normalizer.Now())
}

// ResolveAt is ResolveDirection with an explicit reference instant.
func (r *Resolver) ResolveAt(ds *models.Dataset, station string, dir models.Direction, count int, now time.Time) *models.ResolvedDirection {
	if ds == nil || count <= 0 {
		return nil
	}

	now = now.In(HomeZone)
	today := startOfDay(now)
	var upcoming []models.Departure

	if sel, ok := r.selector.Select(ds, today, dir); ok {
		upcoming = r.collect(upcoming, sel, station, now.Truncate(time.Minute), now, false, count)
	}

	if len(upcoming) < count {
		tomorrow := addDays(today, 1)
		floor := tomorrow
		// today's carry-over may already have reached into tomorrow
		if n := len(upcoming); n > 0 && !upcoming[n-1].DepartsAt.Before(floor) {
			floor = upcoming[n-1].DepartsAt.Add(time.Minute)
		}
		if sel, ok := r.selector.Select(ds, tomorrow, dir); ok {
			upcoming = r.collect(upcoming, sel, station, floor, now, true, count)
		}
	}

	if len(upcoming) == 0 {
		return nil
	}

	return &models.ResolvedDirection{
		Station:     station,
		Direction:   dir,
		Trains:      upcoming,
		Schedule:    upcoming[0].Schedule,
		ScheduleURL: upcoming[0].ScheduleURL,
	}
}

func (r *Resolver) collect(dst []models.Departure, sel Selection, station string, floor, now time.Time, tomorrowPass bool, count int) []models.Departure {
	r.logger.Debug("Scanning timetable",
		"schedule", sel.Name,
		"special_key", sel.SpecialKey,
		"direction", sel.Direction,
		"date", sel.Date.Format("2006-01-02"),
		"station", station)

	for dep, err := range Scan(sel, station, floor, now, tomorrowPass) {
		if err != nil {
			metrics.RolloverRejectCount.Inc()
			r.logger.Warn("Ignoring rest of timetable column",
				"schedule", sel.Name,
				"direction", sel.Direction,
				"station", station,
				"error", err)
			break
		}
		dst = append(dst, dep)
		if len(dst) >= count {
			break
		}
	}
	return dst
}

// ResolveBoth resolves the station named by query in both directions.
// found is false when the query matches no station at all.
func (r *Resolver) ResolveBoth(ds *models.Dataset, query string, count int) (board models.Board, found bool) {
	now := r.normalizer.Now()
	board = models.Board{Query: query, GeneratedAt: now}

	for _, dir := range models.Directions {
		station, ok := NormalizeStation(query, StationsFor(ds, dir))
		if !ok {
			continue
		}
		found = true
		board.Station = station
		resolved := r.ResolveAt(ds, station, dir, count, now)
		switch dir {
		case models.Eastbound:
			board.Eastbound = resolved
		case models.Westbound:
			board.Westbound = resolved
		}
	}
	return board, found
}
