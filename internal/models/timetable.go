package models

import "time"

// TimetableSlot is one scheduled class, either on an explicit date (as in
// exported portal calendars) or recurring weekly.
type TimetableSlot struct {
	Subject   string       `json:"subject"`
	SourceRef string       `json:"source_ref,omitempty"`
	Date      time.Time    `json:"date,omitempty"` // zero when the slot recurs weekly
	Weekday   time.Weekday `json:"weekday"`
	Start     time.Duration `json:"start"` // offset from local midnight
	End       time.Duration `json:"end"`
}

// Recurring reports whether the slot repeats weekly rather than being bound
// to one calendar date.
func (s TimetableSlot) Recurring() bool {
	return s.Date.IsZero()
}

// OccurrenceStart resolves the slot's concrete start instant on the given
// day. The occurrence key used by the attempt tracker is this value, so one
// weekly slot yields a distinct occurrence every week.
func (s TimetableSlot) OccurrenceStart(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(s.Start)
}

// OccurrenceEnd resolves the slot's concrete end instant on the given day.
func (s TimetableSlot) OccurrenceEnd(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(s.End)
}

// SessionStatus is the matcher's verdict for a lesson at one instant.
type SessionStatus string

const (
	StatusNotInSession SessionStatus = "not_in_session"
	StatusInSession    SessionStatus = "in_session"
	StatusUnresolved   SessionStatus = "unresolved"
)

// Classification carries the matcher verdict together with the concrete
// occurrence window when the lesson is in session.
type Classification struct {
	Status          SessionStatus
	OccurrenceStart time.Time
	OccurrenceEnd   time.Time
	Slot            *TimetableSlot
}
