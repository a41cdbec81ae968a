package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	"github.com/nickaq/tg-bot-schedule/internal/portal"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

type attemptRepoStub struct {
	rows map[string]*models.AttendanceAttempt
}

func newAttemptRepoStub() *attemptRepoStub {
	return &attemptRepoStub{rows: make(map[string]*models.AttendanceAttempt)}
}

func attemptKey(lessonID string, occurrence time.Time) string {
	return lessonID + "|" + occurrence.UTC().Format(time.RFC3339)
}

func (s *attemptRepoStub) Find(ctx context.Context, lessonID string, occurrence time.Time) (*models.AttendanceAttempt, error) {
	row, ok := s.rows[attemptKey(lessonID, occurrence)]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *attemptRepoStub) ClaimNew(ctx context.Context, lessonID string, occurrence, now time.Time) (bool, error) {
	key := attemptKey(lessonID, occurrence)
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	at := now
	s.rows[key] = &models.AttendanceAttempt{
		LessonID:        lessonID,
		OccurrenceStart: occurrence,
		Status:          models.AttemptPending,
		Attempts:        1,
		LastAttemptAt:   &at,
	}
	return true, nil
}

func (s *attemptRepoStub) ClaimRetry(ctx context.Context, lessonID string, occurrence, now, dueBefore time.Time, maxAttempts int) (bool, error) {
	row, ok := s.rows[attemptKey(lessonID, occurrence)]
	if !ok || row.Status != models.AttemptPending || row.Attempts >= maxAttempts {
		return false, nil
	}
	if row.LastAttemptAt != nil && row.LastAttemptAt.After(dueBefore) {
		return false, nil
	}
	row.Attempts++
	at := now
	row.LastAttemptAt = &at
	return true, nil
}

func (s *attemptRepoStub) SetStatus(ctx context.Context, lessonID string, occurrence time.Time, status models.AttemptStatus) error {
	row, ok := s.rows[attemptKey(lessonID, occurrence)]
	if !ok {
		return appErrors.ErrNotFound
	}
	row.Status = status
	return nil
}

func TestTrackerClaimsFirstOccurrenceOnce(t *testing.T) {
	repo := newAttemptRepoStub()
	tracker := NewTrackerService(repo, 2*time.Minute, 3, nil)

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	occurrence := now

	claim, err := tracker.TryClaim(context.Background(), "lesson-1", occurrence, now)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 1, claim.Attempt)

	// a second worker in the same round gets nothing
	again, err := tracker.TryClaim(context.Background(), "lesson-1", occurrence, now)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestTrackerMarkedIsTerminal(t *testing.T) {
	repo := newAttemptRepoStub()
	tracker := NewTrackerService(repo, 2*time.Minute, 3, nil)

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	claim, err := tracker.TryClaim(context.Background(), "lesson-1", now, now)
	require.NoError(t, err)
	require.NotNil(t, claim)

	res, err := tracker.Record(context.Background(), claim, portal.OutcomeMarked)
	require.NoError(t, err)
	assert.True(t, res.Final)
	assert.Equal(t, models.AttemptMarked, res.Status)
	assert.Equal(t, models.EventMarked, res.Event)

	// later ticks in the same window never claim a settled occurrence
	later, err := tracker.TryClaim(context.Background(), "lesson-1", now, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, later)
}

func TestTrackerRetriesTransientUntilBudget(t *testing.T) {
	repo := newAttemptRepoStub()
	tracker := NewTrackerService(repo, 2*time.Minute, 3, nil)

	occurrence := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	now := occurrence

	for attempt := 1; attempt <= 3; attempt++ {
		claim, err := tracker.TryClaim(context.Background(), "lesson-1", occurrence, now)
		require.NoError(t, err)
		require.NotNil(t, claim, "attempt %d should be claimable", attempt)
		assert.Equal(t, attempt, claim.Attempt)

		res, err := tracker.Record(context.Background(), claim, portal.OutcomeTransient)
		require.NoError(t, err)
		if attempt < 3 {
			assert.False(t, res.Final)
			assert.Equal(t, models.AttemptPending, res.Status)
			assert.Empty(t, res.Event)
		} else {
			assert.True(t, res.Final)
			assert.Equal(t, models.AttemptFailed, res.Status)
			assert.Equal(t, models.EventRetryExhausted, res.Event)
		}

		now = now.Add(3 * time.Minute)
	}

	claim, err := tracker.TryClaim(context.Background(), "lesson-1", occurrence, now)
	require.NoError(t, err)
	assert.Nil(t, claim, "budget exhausted, no further claims")
}

func TestTrackerRespectsRetryBackoff(t *testing.T) {
	repo := newAttemptRepoStub()
	tracker := NewTrackerService(repo, 5*time.Minute, 3, nil)

	occurrence := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	claim, err := tracker.TryClaim(context.Background(), "lesson-1", occurrence, occurrence)
	require.NoError(t, err)
	require.NotNil(t, claim)
	_, err = tracker.Record(context.Background(), claim, portal.OutcomeTransient)
	require.NoError(t, err)

	// one minute later the retry is not yet due
	early, err := tracker.TryClaim(context.Background(), "lesson-1", occurrence, occurrence.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, early)

	// after the retry interval it is
	due, err := tracker.TryClaim(context.Background(), "lesson-1", occurrence, occurrence.Add(6*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, due)
	assert.Equal(t, 2, due.Attempt)
}

func TestTrackerAuthFailureKeepsPending(t *testing.T) {
	repo := newAttemptRepoStub()
	tracker := NewTrackerService(repo, 2*time.Minute, 3, nil)

	occurrence := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	claim, err := tracker.TryClaim(context.Background(), "lesson-1", occurrence, occurrence)
	require.NoError(t, err)
	require.NotNil(t, claim)

	res, err := tracker.Record(context.Background(), claim, portal.OutcomeAuthFailed)
	require.NoError(t, err)
	assert.False(t, res.Final)
	assert.Equal(t, models.AttemptPending, res.Status)
	assert.Empty(t, res.Event)
}

func TestTrackerSkipsClosedWindowSilently(t *testing.T) {
	repo := newAttemptRepoStub()
	tracker := NewTrackerService(repo, 2*time.Minute, 3, nil)

	occurrence := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	claim, err := tracker.TryClaim(context.Background(), "lesson-1", occurrence, occurrence)
	require.NoError(t, err)
	require.NotNil(t, claim)

	res, err := tracker.Record(context.Background(), claim, portal.OutcomeNotFound)
	require.NoError(t, err)
	assert.True(t, res.Final)
	assert.Equal(t, models.AttemptSkipped, res.Status)
	assert.Empty(t, res.Event)
}
