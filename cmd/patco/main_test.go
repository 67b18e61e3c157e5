package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliDataset = `{
  "schedules": {
    "standard": {
      "westbound": {"weekday": [["Lindenwold", "Ashland"], ["8:10A", "8:12A"], ["8:40A", "8:42A"], ["11:50P", "11:52P"]]}
    }
  }
}`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patco_data.json")
	require.NoError(t, os.WriteFile(path, []byte(cliDataset), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--file", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestNextQuiet(t *testing.T) {
	out, err := run(t, "next", "ash", "wb", "-q", "-n", "2", "--at", "2025-12-01T08:00")
	require.NoError(t, err)
	assert.Equal(t, "8:12A\n8:42A\n", out)
}

func TestNextHugeCount(t *testing.T) {
	out, err := run(t, "next", "ash", "wb", "-q", "-n", "1125899906842624", "--at", "2025-12-01T22:00")
	require.NoError(t, err)
	assert.Equal(t, "11:52P\n8:12A\n8:42A\n11:52P\n", out)
}

func TestNextTable(t *testing.T) {
	out, err := run(t, "next", "Lindenwold", "westbound", "--at", "2025-12-01T23:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Station:   Lindenwold")
	assert.Contains(t, out, "11:50 PM")
	assert.Contains(t, out, "50 min")
	// the second train comes from Tuesday's timetable
	assert.Contains(t, out, "08:10 AM (tomorrow)")
}

func TestNextErrors(t *testing.T) {
	_, err := run(t, "next", "Ashland", "north")
	assert.ErrorContains(t, err, "invalid direction")

	_, err = run(t, "next", "Trenton", "wb")
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, "next", "Ashland", "eb", "--at", "2025-12-01T08:00")
	assert.ErrorContains(t, err, "no upcoming trains")

	_, err = run(t, "next", "Ashland")
	assert.Error(t, err)
}

func TestStations(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"stations", "eb"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 14)
	assert.Equal(t, "15/16th & Locust", lines[0])
	assert.Equal(t, "Lindenwold", lines[13])
}
