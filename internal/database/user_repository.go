package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/flashbot/pkg/models"
	"github.com/jmoiron/sqlx"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = "telegram_id, username, first_name, notification_enabled, notification_hour, created_at"

// UserRepository handles database operations for users
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := r.db.Rebind("SELECT " + userColumns + " FROM users WHERE telegram_id = ?")
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return &user, nil
}

// GetAll returns all users
func (r *UserRepository) GetAll(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY telegram_id"); err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}

// Register inserts a new user or refreshes the names of an existing one.
// Notification settings of existing users are kept.
func (r *UserRepository) Register(ctx context.Context, user *models.User) error {
	query := r.db.Rebind(`
		INSERT INTO users (telegram_id, username, first_name, notification_enabled, notification_hour)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name`)
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.FirstName, user.NotificationEnabled, user.NotificationHour)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	stored, err := r.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// SetNotificationEnabled switches reminders on or off
func (r *UserRepository) SetNotificationEnabled(ctx context.Context, id int64, enabled bool) error {
	return r.update(ctx, "notification_enabled = ?", enabled, id)
}

// SetNotificationHour changes the hour of day reminders are sent at
func (r *UserRepository) SetNotificationHour(ctx context.Context, id int64, hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("notification hour %d out of range", hour)
	}
	return r.update(ctx, "notification_hour = ?", hour, id)
}

func (r *UserRepository) update(ctx context.Context, set string, value interface{}, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("UPDATE users SET "+set+" WHERE telegram_id = ?"), value, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetUsersForNotification returns users who have notifications enabled at the given hour
func (r *UserRepository) GetUsersForNotification(ctx context.Context, hour int) ([]models.User, error) {
	var users []models.User
	query := r.db.Rebind("SELECT " + userColumns + " FROM users WHERE notification_enabled = ? AND notification_hour = ? ORDER BY telegram_id")
	if err := r.db.SelectContext(ctx, &users, query, true, hour); err != nil {
		return nil, fmt.Errorf("failed to get users for notification: %w", err)
	}
	return users, nil
}
