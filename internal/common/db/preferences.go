package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	PrefStation   = "station"
	PrefDirection = "direction"
)

// Preferences is a small key/value table for display settings.
type Preferences struct {
	db  *DB
	now func() time.Time
}

func NewPreferences(db *DB) *Preferences {
	return &Preferences{db: db, now: time.Now}
}

// Get returns the stored value for key or ErrNotFound.
func (p *Preferences) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.db.conn.QueryRowContext(ctx,
		p.db.Rebind(`SELECT pref_value FROM preferences WHERE pref_key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading preference %s: %w", key, err)
	}
	return value, nil
}

// GetOr returns the stored value for key, or fallback when unset.
func (p *Preferences) GetOr(ctx context.Context, key, fallback string) (string, error) {
	value, err := p.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	return value, err
}

func (p *Preferences) Set(ctx context.Context, key, value string) error {
	_, err := p.db.conn.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO preferences (pref_key, pref_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (pref_key) DO UPDATE
		SET pref_value = excluded.pref_value, updated_at = excluded.updated_at
	`), key, value, formatTime(p.now()))
	if err != nil {
		return fmt.Errorf("writing preference %s: %w", key, err)
	}

	p.db.logger.Debug("Preference updated", "key", key, "value", value)
	return nil
}
