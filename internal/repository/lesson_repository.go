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

const lessonColumns = `id, user_id, url, name, enabled, last_checked_at, last_marked_at, created_at, updated_at`

// LessonRepository handles persistence for tracked lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// Create inserts a new tracked lesson.
func (r *LessonRepository) Create(ctx context.Context, userID, url, name string) (*models.Lesson, error) {
	now := time.Now().UTC()
	lesson := &models.Lesson{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       url,
		Name:      name,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := r.db.Rebind(`INSERT INTO lessons (id, user_id, url, name, enabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, query, lesson.ID, lesson.UserID, lesson.URL, lesson.Name, lesson.Enabled, lesson.CreatedAt, lesson.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create lesson: %w", err)
	}
	return lesson, nil
}

// FindByID returns one lesson scoped to its owner.
func (r *LessonRepository) FindByID(ctx context.Context, userID, lessonID string) (*models.Lesson, error) {
	query := r.db.Rebind(`SELECT ` + lessonColumns + ` FROM lessons WHERE id = ? AND user_id = ?`)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, lessonID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find lesson: %w", err)
	}
	return &lesson, nil
}

// ListByUser returns all of the user's lessons.
func (r *LessonRepository) ListByUser(ctx context.Context, userID string) ([]models.Lesson, error) {
	query := r.db.Rebind(`SELECT ` + lessonColumns + ` FROM lessons WHERE user_id = ? ORDER BY created_at`)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, userID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// ListEnabledByUser returns the user's lessons eligible for scheduling.
func (r *LessonRepository) ListEnabledByUser(ctx context.Context, userID string) ([]models.Lesson, error) {
	query := r.db.Rebind(`SELECT ` + lessonColumns + ` FROM lessons WHERE user_id = ? AND enabled ORDER BY created_at`)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, userID); err != nil {
		return nil, fmt.Errorf("list enabled lessons: %w", err)
	}
	return lessons, nil
}

// Delete removes a lesson owned by the user.
func (r *LessonRepository) Delete(ctx context.Context, userID, lessonID string) error {
	query := r.db.Rebind(`DELETE FROM lessons WHERE id = ? AND user_id = ?`)
	res, err := r.db.ExecContext(ctx, query, lessonID, userID)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// Toggle flips the enabled flag and returns the new state.
func (r *LessonRepository) Toggle(ctx context.Context, userID, lessonID string) (*models.Lesson, error) {
	query := r.db.Rebind(`UPDATE lessons SET enabled = NOT enabled, updated_at = ? WHERE id = ? AND user_id = ?`)
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), lessonID, userID)
	if err != nil {
		return nil, fmt.Errorf("toggle lesson: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, appErrors.ErrNotFound
	}
	return r.FindByID(ctx, userID, lessonID)
}

// TouchChecked stamps the last scheduler visit.
func (r *LessonRepository) TouchChecked(ctx context.Context, lessonID string, at time.Time) error {
	query := r.db.Rebind(`UPDATE lessons SET last_checked_at = ?, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, at, time.Now().UTC(), lessonID); err != nil {
		return fmt.Errorf("touch lesson checked: %w", err)
	}
	return nil
}

// TouchMarked stamps the last successful marking.
func (r *LessonRepository) TouchMarked(ctx context.Context, lessonID string, at time.Time) error {
	query := r.db.Rebind(`UPDATE lessons SET last_marked_at = ?, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, at, time.Now().UTC(), lessonID); err != nil {
		return fmt.Errorf("touch lesson marked: %w", err)
	}
	return nil
}
