package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

// UserRepository handles persistence for bot users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByChatID returns the user registered under the chat ID.
func (r *UserRepository) FindByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	query := r.db.Rebind(`SELECT id, chat_id, moodle_login, sealed_credentials, active, auth_failed_at, created_at, updated_at
FROM users WHERE chat_id = ?`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find user by chat id: %w", err)
	}
	return &user, nil
}

// FindByID returns the user row.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := r.db.Rebind(`SELECT id, chat_id, moodle_login, sealed_credentials, active, auth_failed_at, created_at, updated_at
FROM users WHERE id = ?`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// Create inserts a new user for the chat ID.
func (r *UserRepository) Create(ctx context.Context, chatID int64) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := r.db.Rebind(`INSERT INTO users (id, chat_id, moodle_login, sealed_credentials, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.ChatID, user.MoodleLogin, user.SealedCredentials, user.Active, user.CreatedAt, user.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SetCredentials replaces the user's sealed credential blob and clears any
// auth-failure backoff, since fresh credentials deserve a fresh try.
func (r *UserRepository) SetCredentials(ctx context.Context, userID, login string, blob models.SealedBlob) error {
	query := r.db.Rebind(`UPDATE users
SET moodle_login = ?, sealed_credentials = ?, auth_failed_at = NULL, updated_at = ?
WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, login, blob, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("set credentials: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// ListActive returns active users that have credentials on file.
func (r *UserRepository) ListActive(ctx context.Context) ([]models.User, error) {
	query := `SELECT id, chat_id, moodle_login, sealed_credentials, active, auth_failed_at, created_at, updated_at
FROM users WHERE active AND moodle_login <> '' AND sealed_credentials IS NOT NULL ORDER BY created_at`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

// MarkAuthFailed records the instant the portal rejected the user's stored
// credentials. Attempts are suppressed for the configured backoff window.
func (r *UserRepository) MarkAuthFailed(ctx context.Context, userID string, at time.Time) error {
	query := r.db.Rebind(`UPDATE users SET auth_failed_at = ?, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, at, time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("mark auth failed: %w", err)
	}
	return nil
}

// ClearAuthFailed lifts the auth-failure backoff.
func (r *UserRepository) ClearAuthFailed(ctx context.Context, userID string) error {
	query := r.db.Rebind(`UPDATE users SET auth_failed_at = NULL, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("clear auth failed: %w", err)
	}
	return nil
}
