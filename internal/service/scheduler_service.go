package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	"github.com/nickaq/tg-bot-schedule/internal/portal"
	"github.com/nickaq/tg-bot-schedule/internal/vault"
	"github.com/nickaq/tg-bot-schedule/pkg/config"
	"github.com/nickaq/tg-bot-schedule/pkg/jobs"
)

type schedulerUserRepository interface {
	ListActive(ctx context.Context) ([]models.User, error)
	MarkAuthFailed(ctx context.Context, userID string, at time.Time) error
}

type schedulerLessonRepository interface {
	ListEnabledByUser(ctx context.Context, userID string) ([]models.Lesson, error)
	TouchChecked(ctx context.Context, lessonID string, at time.Time) error
	TouchMarked(ctx context.Context, lessonID string, at time.Time) error
}

type timetableProvider interface {
	SlotsFor(ctx context.Context, user *models.User) ([]models.TimetableSlot, error)
}

type lessonClassifier interface {
	Classify(lesson *models.Lesson, slots []models.TimetableSlot, now time.Time) models.Classification
}

type attemptTracker interface {
	TryClaim(ctx context.Context, lessonID string, occurrence, now time.Time) (*Claim, error)
	Record(ctx context.Context, claim *Claim, outcome portal.Outcome) (Resolution, error)
}

type credentialVault interface {
	WithCredentials(user *models.User, fn func(*vault.Credentials) error) error
}

type attendanceMarker interface {
	MarkAttendance(ctx context.Context, creds *vault.Credentials, lessonURL string) (portal.Outcome, error)
}

type eventNotifier interface {
	Notify(ctx context.Context, event models.Event)
	UnresolvedOnce(ctx context.Context, lessonID string, event models.Event)
	ClearUnresolved(ctx context.Context, lessonID string)
	AuthFailedOnce(ctx context.Context, userID string, event models.Event)
	ClearAuthFailed(ctx context.Context, userID string)
}

// SchedulerService drives the poll loop: every tick it walks the active
// users, classifies each tracked lesson against the timetable, and runs at
// most one marking round per in-session occurrence. Ticks never overlap
// because Tick blocks until the worker pool has drained.
type SchedulerService struct {
	users      schedulerUserRepository
	lessons    schedulerLessonRepository
	timetables timetableProvider
	matcher    lessonClassifier
	tracker    attemptTracker
	vault      credentialVault
	portal     attendanceMarker
	notifier   eventNotifier
	pool       *jobs.Pool
	metrics    *MetricsService
	cfg        config.SchedulerConfig
	logger     *zap.Logger
}

// SchedulerDeps bundles the scheduler's collaborators.
type SchedulerDeps struct {
	Users      schedulerUserRepository
	Lessons    schedulerLessonRepository
	Timetables timetableProvider
	Matcher    lessonClassifier
	Tracker    attemptTracker
	Vault      credentialVault
	Portal     attendanceMarker
	Notifier   eventNotifier
	Pool       *jobs.Pool
	Metrics    *MetricsService
}

// NewSchedulerService constructs the scheduler.
func NewSchedulerService(deps SchedulerDeps, cfg config.SchedulerConfig, logger *zap.Logger) *SchedulerService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if deps.Pool == nil {
		deps.Pool = jobs.NewPool(jobs.PoolConfig{Workers: cfg.WorkerConcurrency, Logger: logger})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerService{
		users:      deps.Users,
		lessons:    deps.Lessons,
		timetables: deps.Timetables,
		matcher:    deps.Matcher,
		tracker:    deps.Tracker,
		vault:      deps.Vault,
		portal:     deps.Portal,
		notifier:   deps.Notifier,
		pool:       deps.Pool,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes ticks at the configured poll interval until the context is
// cancelled. The first tick fires immediately.
func (s *SchedulerService) Run(ctx context.Context) {
	s.logger.Sugar().Infow("scheduler started",
		"poll_interval", s.cfg.PollInterval,
		"workers", s.cfg.WorkerConcurrency,
	)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx, time.Now()); err != nil {
			s.logger.Sugar().Errorw("tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one complete scheduling round at the given instant and blocks
// until every (user, lesson) task has finished.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) error {
	start := time.Now()

	users, err := s.users.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}

	var tasks []jobs.Task
	visited := 0
	for i := range users {
		user := users[i]

		if user.AuthFailedAt != nil && now.Sub(*user.AuthFailedAt) < s.cfg.AuthBackoff {
			continue
		}

		lessons, err := s.lessons.ListEnabledByUser(ctx, user.ID)
		if err != nil {
			s.logger.Sugar().Errorw("listing lessons failed", "user_id", user.ID, "error", err)
			continue
		}
		if len(lessons) == 0 {
			continue
		}

		slots, err := s.timetables.SlotsFor(ctx, &user)
		if err != nil {
			s.logger.Sugar().Warnw("timetable unavailable, skipping user this tick",
				"user_id", user.ID, "error", err)
			continue
		}

		visited++
		for j := range lessons {
			u, lesson := user, lessons[j]
			tasks = append(tasks, jobs.Task{
				ID: fmt.Sprintf("%d/%s", u.ChatID, lesson.ID),
				Run: func(taskCtx context.Context) error {
					return s.processPair(taskCtx, &u, &lesson, slots, now)
				},
			})
		}
	}

	s.pool.Run(ctx, tasks)
	s.metrics.ObserveTick(visited, time.Since(start))
	return nil
}

// processPair handles one (user, lesson) pair within a tick.
func (s *SchedulerService) processPair(ctx context.Context, user *models.User, lesson *models.Lesson, slots []models.TimetableSlot, now time.Time) error {
	if err := s.lessons.TouchChecked(ctx, lesson.ID, now); err != nil {
		s.logger.Sugar().Warnw("touch checked failed", "lesson_id", lesson.ID, "error", err)
	}

	cls := s.matcher.Classify(lesson, slots, now)

	if cls.Status == models.StatusUnresolved {
		s.notifier.UnresolvedOnce(ctx, lesson.ID, models.Event{
			Kind:       models.EventUnresolved,
			ChatID:     user.ChatID,
			LessonName: lesson.Label(),
		})
		return nil
	}
	s.notifier.ClearUnresolved(ctx, lesson.ID)

	if cls.Status != models.StatusInSession {
		return nil
	}

	occurrence := cls.OccurrenceStart.UTC()
	claim, err := s.tracker.TryClaim(ctx, lesson.ID, occurrence, now)
	if err != nil {
		return fmt.Errorf("claim occurrence: %w", err)
	}
	if claim == nil {
		return nil
	}

	var outcome portal.Outcome
	markStart := time.Now()
	unsealErr := s.vault.WithCredentials(user, func(creds *vault.Credentials) error {
		outcome, _ = s.portal.MarkAttendance(ctx, creds, lesson.URL)
		return nil
	})
	if unsealErr != nil {
		// the stored blob is unusable until the user re-submits credentials
		s.failAuth(ctx, user, lesson, now, "stored credentials could not be unsealed")
		return unsealErr
	}
	s.metrics.ObserveAttempt(outcome, time.Since(markStart))

	if outcome == portal.OutcomeAuthFailed {
		s.failAuth(ctx, user, lesson, now, "")
	}

	res, err := s.tracker.Record(ctx, claim, outcome)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}

	if res.Status == models.AttemptMarked {
		if err := s.lessons.TouchMarked(ctx, lesson.ID, now); err != nil {
			s.logger.Sugar().Warnw("touch marked failed", "lesson_id", lesson.ID, "error", err)
		}
	}

	if res.Event != "" {
		s.notifier.Notify(ctx, models.Event{
			Kind:       res.Event,
			ChatID:     user.ChatID,
			LessonName: lesson.Label(),
		})
		s.metrics.ObserveEvent(string(res.Event))
	}
	return nil
}

func (s *SchedulerService) failAuth(ctx context.Context, user *models.User, lesson *models.Lesson, now time.Time, detail string) {
	if err := s.users.MarkAuthFailed(ctx, user.ID, now); err != nil {
		s.logger.Sugar().Errorw("mark auth failed", "user_id", user.ID, "error", err)
	}
	s.notifier.AuthFailedOnce(ctx, user.ID, models.Event{
		Kind:       models.EventAuthFailed,
		ChatID:     user.ChatID,
		LessonName: lesson.Label(),
		Detail:     detail,
	})
	s.metrics.ObserveEvent(string(models.EventAuthFailed))
}
