package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const stateTimeout = 5 * time.Second

// StateRepository is the per-user key-value store behind the review scheduler
// and the daily progress. Values are opaque JSON documents.
type StateRepository struct {
	db     *sqlx.DB
	userID int64
}

// NewStateRepository creates a store scoped to one user
func NewStateRepository(db *sqlx.DB, userID int64) *StateRepository {
	return &StateRepository{db: db, userID: userID}
}

// Load returns the value stored under key, or nil when there is none
func (r *StateRepository) Load(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), stateTimeout)
	defer cancel()

	var value string
	query := r.db.Rebind("SELECT value FROM review_state WHERE user_id = ? AND state_key = ?")
	err := r.db.GetContext(ctx, &value, query, r.userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state %q: %w", key, err)
	}
	return []byte(value), nil
}

// Save replaces the value stored under key
func (r *StateRepository) Save(key string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), stateTimeout)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO review_state (user_id, state_key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, state_key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`)
	if _, err := r.db.ExecContext(ctx, query, r.userID, key, string(data)); err != nil {
		return fmt.Errorf("failed to save state %q: %w", key, err)
	}
	return nil
}

// Clear removes every stored value of the user
func (r *StateRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM review_state WHERE user_id = ?"), r.userID)
	if err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}
