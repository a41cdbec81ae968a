package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

var lessonTestColumns = []string{"id", "user_id", "url", "name", "enabled", "last_checked_at", "last_marked_at", "created_at", "updated_at"}

func TestLessonRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lessons")).
		WithArgs(sqlmock.AnyArg(), "u-1", "https://dl.example.edu/mod/attendance/view.php?id=77", "Physics", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	lesson, err := repo.Create(context.Background(), "u-1", "https://dl.example.edu/mod/attendance/view.php?id=77", "Physics")
	require.NoError(t, err)
	assert.NotEmpty(t, lesson.ID)
	assert.True(t, lesson.Enabled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryListEnabledByUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(lessonTestColumns).
		AddRow("l-1", "u-1", "https://dl.example.edu/mod/attendance/view.php?id=77", "Physics", true, nil, nil, now, now).
		AddRow("l-2", "u-1", "https://dl.example.edu/mod/attendance/view.php?id=78", "Chemistry", true, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons WHERE user_id = ? AND enabled")).
		WithArgs("u-1").
		WillReturnRows(rows)

	lessons, err := repo.ListEnabledByUser(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, "Physics", lessons[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryToggle(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE lessons SET enabled = NOT enabled")).
		WithArgs(sqlmock.AnyArg(), "l-1", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now().UTC()
	rows := sqlmock.NewRows(lessonTestColumns).
		AddRow("l-1", "u-1", "https://dl.example.edu/mod/attendance/view.php?id=77", "Physics", false, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons WHERE id = ? AND user_id = ?")).
		WithArgs("l-1", "u-1").
		WillReturnRows(rows)

	lesson, err := repo.Toggle(context.Background(), "u-1", "l-1")
	require.NoError(t, err)
	assert.False(t, lesson.Enabled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryDeleteNotOwned(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lessons WHERE id = ? AND user_id = ?")).
		WithArgs("l-1", "u-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "u-2", "l-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
