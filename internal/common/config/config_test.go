package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Timetable.RefreshSchedule != "@every 15m" {
		t.Errorf("Expected default refresh schedule, got %s", cfg.Timetable.RefreshSchedule)
	}
	if cfg.Timetable.StaleAfter != 15*time.Minute {
		t.Errorf("Expected 15m stale threshold, got %s", cfg.Timetable.StaleAfter)
	}
	if cfg.Display.Interval != time.Minute {
		t.Errorf("Expected 60s display interval, got %s", cfg.Display.Interval)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver by default, got %s", cfg.Database.Driver)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DISPLAY_INTERVAL", "30s")
	t.Setenv("DEFAULT_COUNT", "8")
	t.Setenv("CORS_ORIGINS", "http://localhost:5173, https://patco.example.org")
	t.Setenv("SPECIAL_MATCH", "structured")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Display.Interval != 30*time.Second {
		t.Errorf("Expected 30s, got %s", cfg.Display.Interval)
	}
	if cfg.Display.DefaultCount != 8 {
		t.Errorf("Expected count 8, got %d", cfg.Display.DefaultCount)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 || cfg.HTTP.CORSOrigins[1] != "https://patco.example.org" {
		t.Errorf("Unexpected CORS origins %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Timetable.SpecialMatch != "structured" {
		t.Errorf("Expected structured matching, got %s", cfg.Timetable.SpecialMatch)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SPECIAL_MATCH", "fuzzy")
	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown SPECIAL_MATCH")
	}

	t.Setenv("SPECIAL_MATCH", "substring")
	t.Setenv("DB_DRIVER", "mysql")
	if _, err := Load(); err == nil {
		t.Error("Expected error for unsupported DB_DRIVER")
	}
}

func TestConnectionString(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: "5432", User: "u", Password: "p", DBName: "patco"}
	want := "host=db port=5432 user=u password=p dbname=patco sslmode=disable"
	if got := pg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
