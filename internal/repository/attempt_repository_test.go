package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickaq/tg-bot-schedule/internal/models"
)

func TestAttemptRepositoryClaimNew(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttemptRepository(db)

	occurrence := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	now := occurrence.Add(5 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (lesson_id, occurrence_start) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "l-1", occurrence, models.AttemptPending, now, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ClaimNew(context.Background(), "l-1", occurrence, now)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepositoryClaimNewLosesRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttemptRepository(db)

	occurrence := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	// conflicting insert affects zero rows
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (lesson_id, occurrence_start) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimNew(context.Background(), "l-1", occurrence, occurrence)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestAttemptRepositoryClaimRetry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttemptRepository(db)

	occurrence := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	now := occurrence.Add(10 * time.Minute)
	dueBefore := now.Add(-2 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("SET attempts = attempts + 1")).
		WithArgs(now, now, "l-1", occurrence, models.AttemptPending, 3, dueBefore).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ClaimRetry(context.Background(), "l-1", occurrence, now, dueBefore, 3)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepositoryClaimRetryNotDue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttemptRepository(db)

	occurrence := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("SET attempts = attempts + 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimRetry(context.Background(), "l-1", occurrence, occurrence, occurrence, 3)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestAttemptRepositorySetStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttemptRepository(db)

	occurrence := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_attempts SET status = ?")).
		WithArgs(models.AttemptMarked, sqlmock.AnyArg(), "l-1", occurrence).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetStatus(context.Background(), "l-1", occurrence, models.AttemptMarked)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
