package timetable

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/internal/models"
)

// Correlator decides whether a tracked lesson corresponds to a timetable
// slot. The heuristic is a policy, not a fixed algorithm: deployments tune
// it by swapping the implementation.
type Correlator interface {
	Matches(lesson *models.Lesson, slot models.TimetableSlot) bool
}

// CorrelatorFunc adapts a function to the Correlator interface.
type CorrelatorFunc func(lesson *models.Lesson, slot models.TimetableSlot) bool

// Matches implements Correlator.
func (f CorrelatorFunc) Matches(lesson *models.Lesson, slot models.TimetableSlot) bool {
	return f(lesson, slot)
}

// DefaultCorrelator matches on normalized substring containment between the
// lesson label and the slot subject, in both directions, falling back to
// URL path fragments against the subject and the slot's source reference
// against the lesson URL.
func DefaultCorrelator() Correlator {
	return CorrelatorFunc(func(lesson *models.Lesson, slot models.TimetableSlot) bool {
		subject := normalize(slot.Subject)
		if subject == "" {
			return false
		}

		if name := normalize(lesson.Name); name != "" {
			if strings.Contains(subject, name) || strings.Contains(name, subject) {
				return true
			}
		}

		if slot.SourceRef != "" && strings.Contains(lesson.URL, slot.SourceRef) {
			return true
		}

		for _, part := range strings.Split(lesson.URL, "/") {
			if len(part) > 3 && strings.Contains(subject, normalize(part)) {
				return true
			}
		}
		return false
	})
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

// Matcher classifies lessons against a user's timetable.
type Matcher struct {
	graceBefore time.Duration
	graceAfter  time.Duration
	loc         *time.Location
	correlator  Correlator
	logger      *zap.Logger
}

// NewMatcher builds a matcher with the configured grace margins.
func NewMatcher(graceBefore, graceAfter time.Duration, loc *time.Location, correlator Correlator, logger *zap.Logger) *Matcher {
	if loc == nil {
		loc = time.UTC
	}
	if correlator == nil {
		correlator = DefaultCorrelator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		graceBefore: graceBefore,
		graceAfter:  graceAfter,
		loc:         loc,
		correlator:  correlator,
		logger:      logger,
	}
}

// Classify determines whether the lesson is currently in session. A lesson
// with no correlated slot is Unresolved regardless of the clock. When
// several correlated slots are in window at the same instant, the earliest
// start wins and the ambiguity is logged.
func (m *Matcher) Classify(lesson *models.Lesson, slots []models.TimetableSlot, now time.Time) models.Classification {
	now = now.In(m.loc)

	correlated := make([]models.TimetableSlot, 0, len(slots))
	for _, slot := range slots {
		if m.correlator.Matches(lesson, slot) {
			correlated = append(correlated, slot)
		}
	}
	if len(correlated) == 0 {
		return models.Classification{Status: models.StatusUnresolved}
	}

	var inWindow []models.Classification
	for i := range correlated {
		slot := correlated[i]
		if c, ok := m.windowFor(slot, now); ok {
			c.Slot = &correlated[i]
			inWindow = append(inWindow, c)
		}
	}
	if len(inWindow) == 0 {
		return models.Classification{Status: models.StatusNotInSession}
	}

	best := inWindow[0]
	for _, c := range inWindow[1:] {
		if c.OccurrenceStart.Before(best.OccurrenceStart) {
			best = c
		}
	}
	if len(inWindow) > 1 {
		m.logger.Sugar().Warnw("ambiguous schedule, earliest slot wins",
			"lesson_id", lesson.ID,
			"candidates", len(inWindow),
			"chosen_start", best.OccurrenceStart,
		)
	}
	return best
}

// windowFor reports whether now falls inside the slot's grace-extended
// window on the relevant occurrence day.
func (m *Matcher) windowFor(slot models.TimetableSlot, now time.Time) (models.Classification, bool) {
	var day time.Time
	if slot.Recurring() {
		if now.Weekday() != slot.Weekday {
			return models.Classification{}, false
		}
		day = now
	} else {
		sy, sm, sd := slot.Date.Date()
		ny, nm, nd := now.Date()
		if sy != ny || sm != nm || sd != nd {
			return models.Classification{}, false
		}
		day = slot.Date
	}

	start := slot.OccurrenceStart(day, m.loc)
	end := slot.OccurrenceEnd(day, m.loc)

	if now.Before(start.Add(-m.graceBefore)) || now.After(end.Add(m.graceAfter)) {
		return models.Classification{}, false
	}

	return models.Classification{
		Status:          models.StatusInSession,
		OccurrenceStart: start,
		OccurrenceEnd:   end,
	}, true
}
