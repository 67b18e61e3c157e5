package models

import "testing"

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		cell   string
		hour   int
		minute int
		format string
	}{
		{"4:05A", 4, 5, "04:05 AM"},
		{"12:00A", 0, 0, "12:00 AM"},
		{"12:13A", 0, 13, "12:13 AM"},
		{"12:00P", 12, 0, "12:00 PM"},
		{"11:53P", 23, 53, "11:53 PM"},
		{"1:30P", 13, 30, "01:30 PM"},
		{" 9:45A ", 9, 45, "09:45 AM"},
	}

	for _, tt := range tests {
		ct, ok := ParseClockTime(tt.cell)
		if !ok {
			t.Errorf("ParseClockTime(%q) failed", tt.cell)
			continue
		}
		if ct.Hour != tt.hour || ct.Minute != tt.minute {
			t.Errorf("ParseClockTime(%q) = %d:%02d, want %d:%02d", tt.cell, ct.Hour, ct.Minute, tt.hour, tt.minute)
		}
		if got := ct.Format(); got != tt.format {
			t.Errorf("Format(%q) = %q, want %q", tt.cell, got, tt.format)
		}
		if back, _ := ParseClockTime(ct.Cell()); back != ct {
			t.Errorf("Cell round trip for %q gave %v", tt.cell, back)
		}
	}
}

func TestParseClockTimeRejectsNonTimes(t *testing.T) {
	for _, cell := range []string{"", "4:05", "4:05a", "13:00P", "0:30A", "4:60A", "--", "4:5A", "Lindenwold"} {
		if _, ok := ParseClockTime(cell); ok {
			t.Errorf("ParseClockTime(%q) should not parse", cell)
		}
	}
}

func TestMinutesOfDay(t *testing.T) {
	ct, _ := ParseClockTime("12:45A")
	if got := ct.MinutesOfDay(); got != 45 {
		t.Errorf("MinutesOfDay = %d, want 45", got)
	}
	ct, _ = ParseClockTime("11:53P")
	if got := ct.MinutesOfDay(); got != 23*60+53 {
		t.Errorf("MinutesOfDay = %d, want %d", got, 23*60+53)
	}
}
