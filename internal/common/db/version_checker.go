package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/patconext-data/pkg/timetable/models"
)

// VersionChecker stores timetable snapshots. At most one version is active;
// it is the dataset restored on startup.
type VersionChecker struct {
	db    *DB
	clock clock.Clock
}

// NewVersionChecker uses the wall clock when clk is nil.
func NewVersionChecker(db *DB, clk clock.Clock) *VersionChecker {
	if clk == nil {
		clk = clock.New()
	}
	return &VersionChecker{db: db, clock: clk}
}

// GetActiveVersion returns the active version, or nil when nothing has been
// stored yet.
func (vc *VersionChecker) GetActiveVersion(ctx context.Context) (*models.VersionInfo, error) {
	query := vc.db.Rebind(`
		SELECT version_id, version_name, source_url, checksum, last_updated, created_at, is_active
		FROM timetable_versions
		WHERE is_active = ?
		LIMIT 1
	`)

	version, err := scanVersion(vc.db.conn.QueryRowContext(ctx, query, true))
	if errors.Is(err, sql.ErrNoRows) {
		vc.db.logger.Info("No active timetable version found in database")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active version: %w", err)
	}

	vc.db.logger.Debug("Found active version",
		"version_id", version.VersionID,
		"version_name", version.VersionName,
		"checksum", version.Checksum)

	return version, nil
}

// ActivePayload returns the raw dataset document of the active version.
func (vc *VersionChecker) ActivePayload(ctx context.Context) (*models.VersionInfo, []byte, error) {
	version, err := vc.GetActiveVersion(ctx)
	if err != nil {
		return nil, nil, err
	}
	if version == nil {
		return nil, nil, ErrNotFound
	}

	var payload string
	query := vc.db.Rebind(`SELECT payload FROM timetable_versions WHERE version_id = ?`)
	if err := vc.db.conn.QueryRowContext(ctx, query, version.VersionID).Scan(&payload); err != nil {
		return nil, nil, fmt.Errorf("loading payload for version %s: %w", version.VersionID, err)
	}
	return version, []byte(payload), nil
}

// HasNewerVersion reports whether a dataset with checksum differs from the
// active version.
func (vc *VersionChecker) HasNewerVersion(ctx context.Context, checksum string) (bool, error) {
	activeVersion, err := vc.GetActiveVersion(ctx)
	if err != nil {
		return false, fmt.Errorf("getting active version: %w", err)
	}

	if activeVersion == nil {
		vc.db.logger.Info("No active version found, snapshot needed")
		return true, nil
	}

	isNewer := activeVersion.Checksum != checksum

	vc.db.logger.Debug("Version comparison",
		"dataset_checksum", checksum,
		"active_checksum", activeVersion.Checksum,
		"is_newer", isNewer)

	return isNewer, nil
}

// CreateNewVersion stores a dataset document as the active version and
// returns its id.
func (vc *VersionChecker) CreateNewVersion(ctx context.Context, versionName, sourceURL, lastUpdated, checksum string, payload []byte) (string, error) {
	tx, err := vc.db.BeginTx(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, vc.db.Rebind(`UPDATE timetable_versions SET is_active = ?`), false); err != nil {
		return "", fmt.Errorf("deactivating existing versions: %w", err)
	}

	versionID := uuid.NewString()
	insert := vc.db.Rebind(`
		INSERT INTO timetable_versions
			(version_id, version_name, source_url, checksum, last_updated, created_at, is_active, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = tx.ExecContext(ctx, insert,
		versionID, versionName, sourceURL, checksum, lastUpdated,
		formatTime(vc.clock.Now()), true, string(payload))
	if err != nil {
		return "", fmt.Errorf("inserting new version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}

	vc.db.logger.Info("Created new timetable version",
		"version_id", versionID,
		"version_name", versionName,
		"checksum", checksum)

	return versionID, nil
}

// ActivateVersion makes versionID the active version.
func (vc *VersionChecker) ActivateVersion(ctx context.Context, versionID string) error {
	tx, err := vc.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, vc.db.Rebind(`UPDATE timetable_versions SET is_active = ?`), false); err != nil {
		return fmt.Errorf("deactivating versions: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		vc.db.Rebind(`UPDATE timetable_versions SET is_active = ? WHERE version_id = ?`),
		true, versionID)
	if err != nil {
		return fmt.Errorf("activating version: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	vc.db.logger.Info("Activated timetable version", "version_id", versionID)
	return nil
}

// ListVersions returns every stored version, newest first.
func (vc *VersionChecker) ListVersions(ctx context.Context) ([]models.VersionInfo, error) {
	rows, err := vc.db.conn.QueryContext(ctx, `
		SELECT version_id, version_name, source_url, checksum, last_updated, created_at, is_active
		FROM timetable_versions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var versions []models.VersionInfo
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}
	return versions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*models.VersionInfo, error) {
	var (
		v         models.VersionInfo
		createdAt string
	)
	err := row.Scan(
		&v.VersionID,
		&v.VersionName,
		&v.SourceURL,
		&v.Checksum,
		&v.LastUpdated,
		&createdAt,
		&v.IsActive,
	)
	if err != nil {
		return nil, err
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	return &v, nil
}
