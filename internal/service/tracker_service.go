package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	"github.com/nickaq/tg-bot-schedule/internal/portal"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

type attemptRepository interface {
	Find(ctx context.Context, lessonID string, occurrence time.Time) (*models.AttendanceAttempt, error)
	ClaimNew(ctx context.Context, lessonID string, occurrence, now time.Time) (bool, error)
	ClaimRetry(ctx context.Context, lessonID string, occurrence, now, dueBefore time.Time, maxAttempts int) (bool, error)
	SetStatus(ctx context.Context, lessonID string, occurrence time.Time, status models.AttemptStatus) error
}

// Claim is the result of a successful TryClaim: permission to run exactly
// one marking round for the occurrence.
type Claim struct {
	LessonID        string
	OccurrenceStart time.Time
	Attempt         int
}

// Resolution summarises one completed marking round.
type Resolution struct {
	Status models.AttemptStatus
	// Final means no further rounds will run for this occurrence.
	Final bool
	// Event is the notification to emit, empty when the round produced no
	// newly reached user-visible state.
	Event models.EventKind
}

// TrackerService owns per-occurrence marking state. All races between
// concurrent workers are settled by the repository's atomic claim
// statements; the service layers the retry budget and back-off policy on
// top.
type TrackerService struct {
	repo          attemptRepository
	retryInterval time.Duration
	maxAttempts   int
	logger        *zap.Logger
}

// NewTrackerService constructs the tracker.
func NewTrackerService(repo attemptRepository, retryInterval time.Duration, maxAttempts int, logger *zap.Logger) *TrackerService {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackerService{
		repo:          repo,
		retryInterval: retryInterval,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// TryClaim attempts to take the (lesson, occurrence) pair for one marking
// round. It returns nil without error when the occurrence is already
// settled, out of retry budget, or not yet due for another try.
func (s *TrackerService) TryClaim(ctx context.Context, lessonID string, occurrence, now time.Time) (*Claim, error) {
	existing, err := s.repo.Find(ctx, lessonID, occurrence)
	if err != nil && !errors.Is(err, appErrors.ErrNotFound) {
		return nil, err
	}

	if existing == nil {
		claimed, err := s.repo.ClaimNew(ctx, lessonID, occurrence, now)
		if err != nil || !claimed {
			return nil, err
		}
		return &Claim{LessonID: lessonID, OccurrenceStart: occurrence, Attempt: 1}, nil
	}

	if existing.Status.Terminal() {
		return nil, nil
	}

	dueBefore := now.Add(-s.retryInterval)
	claimed, err := s.repo.ClaimRetry(ctx, lessonID, occurrence, now, dueBefore, s.maxAttempts)
	if err != nil || !claimed {
		return nil, err
	}
	return &Claim{LessonID: lessonID, OccurrenceStart: occurrence, Attempt: existing.Attempts + 1}, nil
}

// Record stores the outcome of the claimed round and decides what, if
// anything, the user should hear about it.
func (s *TrackerService) Record(ctx context.Context, claim *Claim, outcome portal.Outcome) (Resolution, error) {
	switch outcome {
	case portal.OutcomeMarked:
		return s.settle(ctx, claim, models.AttemptMarked, models.EventMarked)

	case portal.OutcomeAlreadyMarked:
		return s.settle(ctx, claim, models.AttemptAlreadyMarked, models.EventAlreadyMarked)

	case portal.OutcomeNotFound:
		// no open self-marking session: nothing the user can act on
		return s.settle(ctx, claim, models.AttemptSkipped, "")

	case portal.OutcomeAuthFailed:
		// the row stays pending so fresh credentials get another round
		// within the budget; the auth notification is the caller's job
		return Resolution{Status: models.AttemptPending}, nil

	case portal.OutcomeTransient:
		if claim.Attempt >= s.maxAttempts {
			return s.settle(ctx, claim, models.AttemptFailed, models.EventRetryExhausted)
		}
		s.logger.Sugar().Infow("transient portal failure, will retry",
			"lesson_id", claim.LessonID,
			"occurrence", claim.OccurrenceStart,
			"attempt", claim.Attempt,
		)
		return Resolution{Status: models.AttemptPending}, nil

	default:
		return Resolution{}, appErrors.Clone(appErrors.ErrInternal, "unknown portal outcome")
	}
}

func (s *TrackerService) settle(ctx context.Context, claim *Claim, status models.AttemptStatus, event models.EventKind) (Resolution, error) {
	if err := s.repo.SetStatus(ctx, claim.LessonID, claim.OccurrenceStart, status); err != nil {
		return Resolution{}, err
	}
	return Resolution{Status: status, Final: true, Event: event}, nil
}
