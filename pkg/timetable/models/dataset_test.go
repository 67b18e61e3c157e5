package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDataset = `{
  "last_updated": "2024-12-20T10:00:00",
  "standard_url": "https://www.ridepatco.org/pdf/PATCO_Timetable_2024-12-01.pdf",
  "stations": {"westbound": ["Lindenwold", "Ashland"], "eastbound": ["Ashland", "Lindenwold"]},
  "schedules": {
    "standard": {
      "westbound": {
        "weekday": [["Lindenwold", "Ashland"], ["4:30A", "4:32A"], ["", 7], ["11:53P", null]]
      }
    },
    "special": {
      "2024-12-31_NewYearsEve": {"westbound": [["Lindenwold"], ["6:00P"]], "url": "https://example.com/nye.pdf"},
      "2024-12-25_Christmas": {"eastbound": [["Ashland"], ["9:00A"]], "url": null},
      "12-24": {"westbound": [["Lindenwold"], ["1:00P"]]}
    }
  }
}`

func TestDecodeDataset(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleDataset))
	require.NoError(t, err)

	assert.Equal(t, "https://www.ridepatco.org/pdf/PATCO_Timetable_2024-12-01.pdf", ds.StandardURL)
	assert.Equal(t, []string{"Lindenwold", "Ashland"}, ds.Stations[Westbound])
	assert.Len(t, ds.Checksum, 64)

	weekday := ds.Standard[Westbound][Weekday]
	require.Len(t, weekday, 4)
	assert.Equal(t, []string{"", ""}, weekday[2], "non-string cells decode as empty")
	assert.Equal(t, []string{"11:53P", ""}, weekday[3])

	col, ok := weekday.Column("Ashland")
	assert.True(t, ok)
	assert.Equal(t, 1, col)
	_, ok = weekday.Column("City Hall")
	assert.False(t, ok)
}

func TestDecodeKeepsSpecialOrder(t *testing.T) {
	ds, err := DecodeBytes([]byte(sampleDataset))
	require.NoError(t, err)

	require.Len(t, ds.Special, 3)
	assert.Equal(t, "2024-12-31_NewYearsEve", ds.Special[0].Key)
	assert.Equal(t, "https://example.com/nye.pdf", ds.Special[0].URL)
	assert.Equal(t, "2024-12-25_Christmas", ds.Special[1].Key)
	assert.Empty(t, ds.Special[1].URL)
	assert.Contains(t, ds.Special[1].Matrices, Eastbound)
	assert.NotContains(t, ds.Special[1].Matrices, Westbound)
	assert.Equal(t, "12-24", ds.Special[2].Key)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"missing schedules": `{"standard_url": "x"}`,
		"missing standard":  `{"schedules": {"special": {}}}`,
		"unknown direction": `{"schedules": {"standard": {"northbound": {}}}}`,
		"unknown day type":  `{"schedules": {"standard": {"eastbound": {"holiday": [["A"]]}}}}`,
		"empty header":      `{"schedules": {"standard": {"eastbound": {"weekday": [[]]}}}}`,
		"garbled matrix":    `{"schedules": {"standard": {"eastbound": {"weekday": "nope"}}}}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedDataset), "got %v", err)
		})
	}
}

func TestDecodeEmptyStandardIsValid(t *testing.T) {
	ds, err := DecodeBytes([]byte(`{"schedules": {"standard": {}}}`))
	require.NoError(t, err)
	assert.Empty(t, ds.Standard)
	assert.Empty(t, ds.Special)
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"eb", "E", "east", " Eastbound "} {
		dir, ok := ParseDirection(s)
		assert.True(t, ok, s)
		assert.Equal(t, Eastbound, dir, s)
	}
	for _, s := range []string{"wb", "w", "WEST", "westbound"} {
		dir, ok := ParseDirection(s)
		assert.True(t, ok, s)
		assert.Equal(t, Westbound, dir, s)
	}
	_, ok := ParseDirection("north")
	assert.False(t, ok)
}
