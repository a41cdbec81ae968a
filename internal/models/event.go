package models

// EventKind identifies a user-visible outcome of the attendance engine.
// Events are emitted only for newly reached terminal or actionable states.
type EventKind string

const (
	EventMarked         EventKind = "marked"
	EventAlreadyMarked  EventKind = "already_marked"
	EventAuthFailed     EventKind = "auth_failed"
	EventRetryExhausted EventKind = "retry_exhausted"
	EventUnresolved     EventKind = "unresolved"
)

// Event is the payload handed to the notifier.
type Event struct {
	Kind       EventKind `json:"kind"`
	ChatID     int64     `json:"chat_id"`
	LessonName string    `json:"lesson_name"`
	Detail     string    `json:"detail,omitempty"`
}
