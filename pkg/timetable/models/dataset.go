package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedDataset is returned when the timetable document is missing
// or garbles its top-level structure.
var ErrMalformedDataset = errors.New("malformed timetable dataset")

type Direction string

const (
	Eastbound Direction = "eastbound"
	Westbound Direction = "westbound"
)

// Directions lists the closed set of directions in display order.
var Directions = []Direction{Eastbound, Westbound}

func (d Direction) Valid() bool {
	return d == Eastbound || d == Westbound
}

// ParseDirection accepts the canonical names and the short aliases used on
// the command line ("eb", "w", "west", ...).
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eb", "e", "east", "eastbound":
		return Eastbound, true
	case "wb", "w", "west", "westbound":
		return Westbound, true
	}
	return "", false
}

type DayType string

const (
	Weekday  DayType = "weekday"
	Saturday DayType = "saturday"
	Sunday   DayType = "sunday"
)

func parseDayType(s string) (DayType, bool) {
	switch DayType(s) {
	case Weekday, Saturday, Sunday:
		return DayType(s), true
	}
	return "", false
}

// Matrix is one schedule table. Row 0 is the header of station names and
// every following row is one trip; an empty cell means the trip does not
// stop at that station.
type Matrix [][]string

// UnmarshalJSON keeps string cells and blanks everything else, so that a
// stray number or null from the extractor is read as "no stop".
func (m *Matrix) UnmarshalJSON(b []byte) error {
	var rows [][]interface{}
	if err := json.Unmarshal(b, &rows); err != nil {
		return err
	}

	out := make(Matrix, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			if s, ok := v.(string); ok {
				cells[j] = s
			}
		}
		out[i] = cells
	}
	*m = out
	return nil
}

// Header returns the station names, or nil for an empty matrix.
func (m Matrix) Header() []string {
	if len(m) == 0 {
		return nil
	}
	return m[0]
}

// Rows returns the departure rows below the header.
func (m Matrix) Rows() [][]string {
	if len(m) < 2 {
		return nil
	}
	return m[1:]
}

// Column returns the index of station in the header row.
func (m Matrix) Column(station string) (int, bool) {
	for i, name := range m.Header() {
		if name == station {
			return i, true
		}
	}
	return -1, false
}

// SpecialSchedule is a date-keyed override, e.g. a holiday timetable.
type SpecialSchedule struct {
	Key      string
	URL      string
	Matrices map[Direction]Matrix
}

// Dataset is one immutable snapshot of the line's timetables.
type Dataset struct {
	LastUpdated string
	StandardURL string
	Stations    map[Direction][]string
	Standard    map[Direction]map[DayType]Matrix
	// Special keeps the order the overrides were published in.
	Special []SpecialSchedule

	// Checksum is the hex sha256 of the source document.
	Checksum string
}

type rawDataset struct {
	LastUpdated string              `json:"last_updated"`
	StandardURL string              `json:"standard_url"`
	Stations    map[string][]string `json:"stations"`
	Schedules   *rawSchedules       `json:"schedules"`
}

type rawSchedules struct {
	Standard map[string]map[string]Matrix `json:"standard"`
	Special  specialList                  `json:"special"`
}

type specialList []SpecialSchedule

// UnmarshalJSON walks the object token by token because map decoding would
// lose the published order the selector depends on.
func (s *specialList) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("special schedules: expected object, got %v", tok)
	}

	var out specialList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("special schedules: unexpected key %v", keyTok)
		}

		var fields map[string]json.RawMessage
		if err := dec.Decode(&fields); err != nil {
			return fmt.Errorf("special schedule %q: %w", key, err)
		}

		entry := SpecialSchedule{Key: key, Matrices: make(map[Direction]Matrix)}
		for name, value := range fields {
			if name == "url" {
				if err := json.Unmarshal(value, &entry.URL); err != nil {
					return fmt.Errorf("special schedule %q url: %w", key, err)
				}
				continue
			}
			dir := Direction(name)
			if !dir.Valid() {
				continue
			}
			var m Matrix
			if err := json.Unmarshal(value, &m); err != nil {
				return fmt.Errorf("special schedule %q %s: %w", key, dir, err)
			}
			entry.Matrices[dir] = m
		}
		out = append(out, entry)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// Decode reads a timetable document and validates its structure.
func Decode(r io.Reader) (*Dataset, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return DecodeBytes(b)
}

// DecodeBytes parses and validates a timetable document.
func DecodeBytes(b []byte) (*Dataset, error) {
	var raw rawDataset
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}
	if raw.Schedules == nil {
		return nil, fmt.Errorf("%w: missing schedules", ErrMalformedDataset)
	}
	if raw.Schedules.Standard == nil {
		return nil, fmt.Errorf("%w: missing schedules.standard", ErrMalformedDataset)
	}

	ds := &Dataset{
		LastUpdated: raw.LastUpdated,
		StandardURL: raw.StandardURL,
		Stations:    make(map[Direction][]string),
		Standard:    make(map[Direction]map[DayType]Matrix),
		Special:     raw.Schedules.Special,
	}

	for name, stations := range raw.Stations {
		if dir := Direction(name); dir.Valid() {
			ds.Stations[dir] = stations
		}
	}

	for name, byDay := range raw.Schedules.Standard {
		dir := Direction(name)
		if !dir.Valid() {
			return nil, fmt.Errorf("%w: unknown direction %q", ErrMalformedDataset, name)
		}
		matrices := make(map[DayType]Matrix, len(byDay))
		for dayName, m := range byDay {
			day, ok := parseDayType(dayName)
			if !ok {
				return nil, fmt.Errorf("%w: unknown day type %q for %s", ErrMalformedDataset, dayName, dir)
			}
			matrices[day] = m
		}
		ds.Standard[dir] = matrices
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(b)
	ds.Checksum = hex.EncodeToString(sum[:])
	return ds, nil
}

// Validate checks the invariants every consumer of a Dataset relies on.
func (ds *Dataset) Validate() error {
	if ds == nil || ds.Standard == nil {
		return fmt.Errorf("%w: missing schedules.standard", ErrMalformedDataset)
	}
	for dir, byDay := range ds.Standard {
		if !dir.Valid() {
			return fmt.Errorf("%w: unknown direction %q", ErrMalformedDataset, dir)
		}
		for day, m := range byDay {
			if len(m.Header()) == 0 {
				return fmt.Errorf("%w: empty header row in %s %s", ErrMalformedDataset, dir, day)
			}
		}
	}
	return nil
}
