package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Database    DatabaseConfig
	Timetable   TimetableConfig
	Display     DisplayConfig
	HTTP        HTTPConfig
	Maintenance MaintenanceConfig
	Logging     LoggingConfig
}

type DatabaseConfig struct {
	Driver     string // "postgres" or "sqlite"
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// TimetableConfig controls where the timetable dataset comes from and how
// often it is refreshed
type TimetableConfig struct {
	DataURL          string
	SchedulesPageURL string // optional, scraped for published PDFs
	RefreshSchedule  string // cron spec
	StaleAfter       time.Duration
	FetchTimeout     time.Duration
	SpecialMatch     string // "substring" or "structured"
	StandardPDFURL   string // used when the dataset has no standard_url
	SpecialPageURL   string // used when a special schedule has no url
}

// DisplayConfig controls the departure board refresh loop
type DisplayConfig struct {
	Interval       time.Duration
	DefaultCount   int
	DefaultStation string
}

type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
}

type MaintenanceConfig struct {
	CleanupInterval      time.Duration
	KeepInactiveVersions int
}

type LoggingConfig struct {
	Level      string
	FilePath   string
	DiscordURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "sqlite"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "patconext"),
			SQLitePath: getEnv("SQLITE_PATH", "patconext.db"),
		},
		Timetable: TimetableConfig{
			DataURL:          getEnv("DATA_URL", "https://patco.example.org/data/patco_data.json"),
			SchedulesPageURL: getEnv("SCHEDULES_PAGE_URL", ""),
			RefreshSchedule:  getEnv("REFRESH_SCHEDULE", "@every 15m"),
			StaleAfter:       getDurationEnv("STALE_AFTER", 15*time.Minute),
			FetchTimeout:     getDurationEnv("FETCH_TIMEOUT", 30*time.Second),
			SpecialMatch:     getEnv("SPECIAL_MATCH", "substring"),
			StandardPDFURL:   getEnv("STANDARD_PDF_URL", "https://www.ridepatco.org/pdf/PATCO_Timetable_2025-12-01.pdf"),
			SpecialPageURL:   getEnv("SPECIAL_PAGE_URL", "https://www.ridepatco.org/schedules/"),
		},
		Display: DisplayConfig{
			Interval:       getDurationEnv("DISPLAY_INTERVAL", 60*time.Second),
			DefaultCount:   getIntEnv("DEFAULT_COUNT", 5),
			DefaultStation: getEnv("DEFAULT_STATION", "Lindenwold"),
		},
		HTTP: HTTPConfig{
			Addr:        getEnv("HTTP_ADDR", ":8080"),
			CORSOrigins: getListEnv("CORS_ORIGINS", []string{"*"}),
		},
		Maintenance: MaintenanceConfig{
			CleanupInterval:      getDurationEnv("CLEANUP_INTERVAL", 24*time.Hour),
			KeepInactiveVersions: getIntEnv("KEEP_INACTIVE_VERSIONS", 3),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE", "patconext.log"),
			DiscordURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.Timetable.DataURL == "" {
		return fmt.Errorf("DATA_URL is required")
	}
	switch c.Timetable.SpecialMatch {
	case "substring", "structured":
	default:
		return fmt.Errorf("SPECIAL_MATCH must be substring or structured, got %q", c.Timetable.SpecialMatch)
	}
	if c.Timetable.StaleAfter <= 0 {
		return fmt.Errorf("STALE_AFTER must be positive")
	}
	if c.Display.Interval <= 0 {
		return fmt.Errorf("DISPLAY_INTERVAL must be positive")
	}
	if c.Display.DefaultCount <= 0 {
		return fmt.Errorf("DEFAULT_COUNT must be positive")
	}
	if c.Maintenance.KeepInactiveVersions < 0 {
		return fmt.Errorf("KEEP_INACTIVE_VERSIONS cannot be negative")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres":
		if c.Host == "" || c.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
	return nil
}

// ConnectionString returns the DSN for the configured driver
func (c *DatabaseConfig) ConnectionString() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
