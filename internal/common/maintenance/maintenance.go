package maintenance

import (
	"context"
	"fmt"

	"github.com/patconext-data/internal/common/db"
	"github.com/patconext-data/internal/common/logger"
)

// VersionCleanupResult describes one deleted timetable version.
type VersionCleanupResult struct {
	VersionID   string `json:"version_id"`
	VersionName string `json:"version_name"`
	CreatedAt   string `json:"created_at"`
}

// Maintenance handles database cleanup and maintenance operations
type Maintenance struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB, logger logger.Logger) *Maintenance {
	return &Maintenance{
		db:     database,
		logger: logger,
	}
}

// CleanupOldVersions removes inactive timetable versions, keeping the
// active one and the keepInactiveVersions most recent inactive ones.
func (m *Maintenance) CleanupOldVersions(ctx context.Context, keepInactiveVersions int) ([]VersionCleanupResult, error) {
	if keepInactiveVersions < 0 {
		keepInactiveVersions = 0
	}
	m.logger.Info("Starting cleanup of old timetable versions", "keep_inactive_versions", keepInactiveVersions)

	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, m.db.Rebind(`
		SELECT version_id, version_name, created_at
		FROM timetable_versions
		WHERE is_active = ?
		ORDER BY created_at DESC
	`), false)
	if err != nil {
		return nil, fmt.Errorf("listing inactive versions: %w", err)
	}

	var stale []VersionCleanupResult
	seen := 0
	for rows.Next() {
		var result VersionCleanupResult
		if err := rows.Scan(&result.VersionID, &result.VersionName, &result.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		seen++
		if seen > keepInactiveVersions {
			stale = append(stale, result)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating versions: %w", err)
	}
	rows.Close()

	del := m.db.Rebind(`DELETE FROM timetable_versions WHERE version_id = ? AND is_active = ?`)
	for _, result := range stale {
		if _, err := tx.ExecContext(ctx, del, result.VersionID, false); err != nil {
			return nil, fmt.Errorf("deleting version %s: %w", result.VersionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cleanup: %w", err)
	}

	for _, result := range stale {
		m.logger.Info("Cleaned up timetable version",
			"version_id", result.VersionID,
			"version_name", result.VersionName,
			"created_at", result.CreatedAt)
	}

	if len(stale) > 0 {
		if err := m.Vacuum(ctx); err != nil {
			m.logger.Warn("Failed to vacuum after cleanup", "error", err)
		}
	}

	return stale, nil
}

// Vacuum reclaims space after deletes. Must run outside a transaction.
func (m *Maintenance) Vacuum(ctx context.Context) error {
	stmt := "VACUUM"
	if m.db.Driver() == "postgres" {
		stmt = "VACUUM ANALYZE timetable_versions"
	}

	m.logger.Debug("Running vacuum", "statement", stmt)
	if _, err := m.db.DB().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("running %s: %w", stmt, err)
	}
	return nil
}
