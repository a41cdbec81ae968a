package models

import "time"

// AttemptStatus tracks the lifecycle of one attendance-marking attempt.
type AttemptStatus string

const (
	AttemptPending       AttemptStatus = "pending"
	AttemptMarked        AttemptStatus = "marked"
	AttemptAlreadyMarked AttemptStatus = "already_marked"
	AttemptFailed        AttemptStatus = "failed"
	AttemptSkipped       AttemptStatus = "skipped"
)

// Terminal reports whether no further marking attempts may be made for the
// occurrence once this status is stored.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptMarked, AttemptAlreadyMarked, AttemptSkipped, AttemptFailed:
		return true
	default:
		return false
	}
}

// AttendanceAttempt records marking progress for one (lesson, occurrence)
// pair. At most one attempt per occurrence ever reaches "marked".
type AttendanceAttempt struct {
	ID              string        `db:"id" json:"id"`
	LessonID        string        `db:"lesson_id" json:"lesson_id"`
	OccurrenceStart time.Time     `db:"occurrence_start" json:"occurrence_start"`
	Status          AttemptStatus `db:"status" json:"status"`
	Attempts        int           `db:"attempts" json:"attempts"`
	LastAttemptAt   *time.Time    `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}
