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

// AttemptRepository persists per-occurrence marking state. The claim
// operations are single atomic statements so that two workers can never
// both win the same occurrence.
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository constructs the repository.
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Find returns the attempt row for one (lesson, occurrence) pair.
func (r *AttemptRepository) Find(ctx context.Context, lessonID string, occurrence time.Time) (*models.AttendanceAttempt, error) {
	query := r.db.Rebind(`SELECT id, lesson_id, occurrence_start, status, attempts, last_attempt_at, created_at, updated_at
FROM attendance_attempts WHERE lesson_id = ? AND occurrence_start = ?`)
	var attempt models.AttendanceAttempt
	if err := r.db.GetContext(ctx, &attempt, query, lessonID, occurrence); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find attempt: %w", err)
	}
	return &attempt, nil
}

// ClaimNew atomically creates the pending record for a first-time
// occurrence. Reports false when another worker got there first.
func (r *AttemptRepository) ClaimNew(ctx context.Context, lessonID string, occurrence, now time.Time) (bool, error) {
	query := r.db.Rebind(`INSERT INTO attendance_attempts (id, lesson_id, occurrence_start, status, attempts, last_attempt_at, created_at, updated_at)
VALUES (?, ?, ?, ?, 1, ?, ?, ?)
ON CONFLICT (lesson_id, occurrence_start) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, query, uuid.NewString(), lessonID, occurrence, models.AttemptPending, now, now, now)
	if err != nil {
		return false, fmt.Errorf("claim new attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim new attempt: %w", err)
	}
	return n == 1, nil
}

// ClaimRetry atomically takes a still-pending occurrence for another try,
// honouring the retry budget and the back-off deadline in one statement.
func (r *AttemptRepository) ClaimRetry(ctx context.Context, lessonID string, occurrence, now, dueBefore time.Time, maxAttempts int) (bool, error) {
	query := r.db.Rebind(`UPDATE attendance_attempts
SET attempts = attempts + 1, last_attempt_at = ?, updated_at = ?
WHERE lesson_id = ? AND occurrence_start = ? AND status = ? AND attempts < ?
AND (last_attempt_at IS NULL OR last_attempt_at <= ?)`)
	res, err := r.db.ExecContext(ctx, query, now, now, lessonID, occurrence, models.AttemptPending, maxAttempts, dueBefore)
	if err != nil {
		return false, fmt.Errorf("claim retry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim retry: %w", err)
	}
	return n == 1, nil
}

// SetStatus records the outcome of an attempt round.
func (r *AttemptRepository) SetStatus(ctx context.Context, lessonID string, occurrence time.Time, status models.AttemptStatus) error {
	query := r.db.Rebind(`UPDATE attendance_attempts SET status = ?, updated_at = ? WHERE lesson_id = ? AND occurrence_start = ?`)
	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), lessonID, occurrence)
	if err != nil {
		return fmt.Errorf("set attempt status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// ListRecentByUser returns the newest attempts across the user's lessons,
// used by the status surfaces.
func (r *AttemptRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]models.AttendanceAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := r.db.Rebind(`SELECT a.id, a.lesson_id, a.occurrence_start, a.status, a.attempts, a.last_attempt_at, a.created_at, a.updated_at
FROM attendance_attempts a
JOIN lessons l ON l.id = a.lesson_id
WHERE l.user_id = ?
ORDER BY a.occurrence_start DESC
LIMIT ?`)
	var attempts []models.AttendanceAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list recent attempts: %w", err)
	}
	return attempts, nil
}
