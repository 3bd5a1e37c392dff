package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"capillaire/internal/store"
)

// PreferencesRepository keeps small per-owner flags such as the daily
// reminder toggle.
type PreferencesRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPreferencesRepository creates a new PreferencesRepository.
func NewPreferencesRepository(d *sql.DB) *PreferencesRepository {
	return &PreferencesRepository{db: d, now: time.Now}
}

// GetBool returns the flag stored under key, false if absent.
func (r *PreferencesRepository) GetBool(ctx context.Context, owner, key string) (bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE owner = ? AND key = ?`, owner, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classify("get preference", err)
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, store.Transport("get preference", err)
	}
	return b, nil
}

// SetBool stores value under key.
func (r *PreferencesRepository) SetBool(ctx context.Context, owner, key string, value bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO preferences (owner, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(owner, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		owner, key, strconv.FormatBool(value), r.now().UTC(),
	)
	if err != nil {
		return classify("set preference", err)
	}
	return nil
}

// DeleteOwner removes every preference of owner.
func (r *PreferencesRepository) DeleteOwner(ctx context.Context, owner string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM preferences WHERE owner = ?`, owner); err != nil {
		return classify("delete preferences", err)
	}
	return nil
}

var _ store.Preferences = (*PreferencesRepository)(nil)
