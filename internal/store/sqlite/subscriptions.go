package sqlite

import (
	"context"
	"database/sql"
	"time"

	"capillaire/internal/store"

	"github.com/google/uuid"
)

// SubscriptionRepository reads and writes subscription rows.
type SubscriptionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(d *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: d, now: time.Now}
}

// HasActiveSubscription reports whether any active row exists for userID.
func (r *SubscriptionRepository) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE user_id = ? AND status = ?`,
		userID, string(store.SubscriptionActive),
	).Scan(&n)
	if err != nil {
		return false, classify("has active subscription", err)
	}
	return n > 0, nil
}

// SetSubscriptionStatus records a new status for userID. Previous active
// rows are marked inactive so only the newest row decides.
func (r *SubscriptionRepository) SetSubscriptionStatus(ctx context.Context, userID string, status store.SubscriptionStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("set subscription status", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET status = ? WHERE user_id = ? AND status = ?`,
		string(store.SubscriptionInactive), userID, string(store.SubscriptionActive),
	); err != nil {
		return classify("set subscription status", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (id, user_id, status, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), userID, string(status), r.now().UTC(),
	); err != nil {
		return classify("set subscription status", err)
	}
	if err := tx.Commit(); err != nil {
		return classify("set subscription status", err)
	}
	return nil
}

var _ store.SubscriptionStore = (*SubscriptionRepository)(nil)
