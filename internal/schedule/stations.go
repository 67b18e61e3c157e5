package schedule

import (
	"slices"
	"strings"

	"github.com/patconext-data/pkg/timetable/models"
)

// westboundStations is the line from Lindenwold to Center City, used when
// the dataset carries no station list of its own.
var westboundStations = []string{
	"Lindenwold", "Ashland", "Woodcrest", "Haddonfield", "Westmont",
	"Collingswood", "Ferry Avenue", "Broadway", "City Hall", "Franklin Square",
	"8th & Market", "9/10th & Locust", "12/13th & Locust", "15/16th & Locust",
}

type StationGroup struct {
	Label    string   `json:"label"`
	Stations []string `json:"stations"`
}

// StationGroups splits the line by state for pickers.
func StationGroups() []StationGroup {
	return []StationGroup{
		{Label: "New Jersey", Stations: slices.Clone(westboundStations[:9])},
		{Label: "Philadelphia", Stations: slices.Clone(westboundStations[9:])},
	}
}

// StationsFor returns the stations in travel order for dir. Eastbound is a
// reversed copy of the westbound list unless the dataset lists it
// explicitly; neither the dataset nor the built-in list is modified.
func StationsFor(ds *models.Dataset, dir models.Direction) []string {
	if ds != nil {
		if list := ds.Stations[dir]; len(list) > 0 {
			return slices.Clone(list)
		}
	}

	canonical := canonicalStations(ds)
	if dir == models.Eastbound {
		out := slices.Clone(canonical)
		slices.Reverse(out)
		return out
	}
	return canonical
}

func canonicalStations(ds *models.Dataset) []string {
	if ds != nil {
		if list := ds.Stations[models.Westbound]; len(list) > 0 {
			return slices.Clone(list)
		}
		if m, ok := ds.Standard[models.Westbound][models.Weekday]; ok {
			return slices.Clone(m.Header())
		}
	}
	return slices.Clone(westboundStations)
}

// NormalizeStation maps free text to a station name: case-insensitive exact
// match first, then a name containing the query or contained in it.
func NormalizeStation(query string, stations []string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", false
	}

	for _, s := range stations {
		if strings.ToLower(s) == q {
			return s, true
		}
	}
	for _, s := range stations {
		name := strings.ToLower(s)
		if strings.Contains(name, q) || strings.Contains(q, name) {
			return s, true
		}
	}
	return "", false
}
