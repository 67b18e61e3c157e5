package models

import "time"

// VersionInfo describes one stored timetable snapshot.
type VersionInfo struct {
	VersionID   string    `json:"version_id"`
	VersionName string    `json:"version_name"`
	SourceURL   string    `json:"source_url"`
	Checksum    string    `json:"checksum"`
	LastUpdated string    `json:"last_updated,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`
}
