package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/patconext-data/pkg/timetable/models"
)

const (
	DefaultStandardURL = "https://www.ridepatco.org/pdf/PATCO_Timetable_2025-12-01.pdf"
	DefaultSpecialURL  = "https://www.ridepatco.org/schedules/"
)

// MatchMode decides how a special schedule key is compared to a date.
type MatchMode string

const (
	// MatchSubstring accepts a key containing the ISO date or the MM-DD
	// fragment anywhere. It is what the published data is keyed for.
	MatchSubstring MatchMode = "substring"
	// MatchStructured compares parsed date fragments for equality, so that
	// "2025-12-25" no longer matches on 2026-12-25.
	MatchStructured MatchMode = "structured"
)

var (
	dateRun   = regexp.MustCompile(`\d+(?:-\d+)*`)
	isoDate   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	shortDate = regexp.MustCompile(`^\d{2}-\d{2}$`)
)

// Selection is the matrix that applies to one date and direction.
type Selection struct {
	Matrix     models.Matrix
	Name       string
	URL        string
	Special    bool
	SpecialKey string
	Date       time.Time
	Direction  models.Direction
}

// Selector picks the timetable for a date: a special override when one
// matches, otherwise the standard matrix for the day type.
type Selector struct {
	StandardFallbackURL string
	SpecialFallbackURL  string
	Match               MatchMode
}

func NewSelector() *Selector {
	return &Selector{
		StandardFallbackURL: DefaultStandardURL,
		SpecialFallbackURL:  DefaultSpecialURL,
		Match:               MatchSubstring,
	}
}

// Select returns ok=false when neither an override nor the standard
// timetable covers date in dir. That is "no service", not an error.
func (s *Selector) Select(ds *models.Dataset, date time.Time, dir models.Direction) (Selection, bool) {
	if ds == nil {
		return Selection{}, false
	}
	date = startOfDay(date)
	dateKey := date.Format("2006-01-02")
	shortKey := date.Format("01-02")

	for _, special := range ds.Special {
		if !s.keyMatches(special.Key, dateKey, shortKey) {
			continue
		}
		// first match wins; without a matrix for dir we fall through to standard
		if m, ok := special.Matrices[dir]; ok {
			url := special.URL
			if url == "" {
				url = s.SpecialFallbackURL
			}
			return Selection{
				Matrix:     m,
				Name:       fmt.Sprintf("Special (%s)", shortKey),
				URL:        url,
				Special:    true,
				SpecialKey: special.Key,
				Date:       date,
				Direction:  dir,
			}, true
		}
		break
	}

	day := DayTypeOf(date)
	m, ok := ds.Standard[dir][day]
	if !ok {
		return Selection{}, false
	}

	base := ds.StandardURL
	if base == "" {
		base = s.StandardFallbackURL
	}
	anchor := "#page=1"
	if day != models.Weekday {
		anchor = "#page=2"
	}

	return Selection{
		Matrix:    m,
		Name:      string(day),
		URL:       base + anchor,
		Date:      date,
		Direction: dir,
	}, true
}

func (s *Selector) keyMatches(key, dateKey, shortKey string) bool {
	if s.Match != MatchStructured {
		return strings.Contains(key, dateKey) || strings.Contains(key, shortKey)
	}

	runs := dateRun.FindAllString(key, -1)
	hasISO := false
	for _, run := range runs {
		if isoDate.MatchString(run) {
			hasISO = true
			if run == dateKey {
				return true
			}
		}
	}
	if hasISO {
		return false
	}
	for _, run := range runs {
		if shortDate.MatchString(run) && run == shortKey {
			return true
		}
	}
	return false
}
