package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	"github.com/nickaq/tg-bot-schedule/internal/vault"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

type lessonUserRepository interface {
	FindByChatID(ctx context.Context, chatID int64) (*models.User, error)
	Create(ctx context.Context, chatID int64) (*models.User, error)
	SetCredentials(ctx context.Context, userID, login string, blob models.SealedBlob) error
}

type lessonRepository interface {
	Create(ctx context.Context, userID, url, name string) (*models.Lesson, error)
	ListByUser(ctx context.Context, userID string) ([]models.Lesson, error)
	Delete(ctx context.Context, userID, lessonID string) error
	Toggle(ctx context.Context, userID, lessonID string) (*models.Lesson, error)
}

type attemptHistoryRepository interface {
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]models.AttendanceAttempt, error)
}

type credentialSealer interface {
	Seal(creds vault.Credentials) (models.SealedBlob, error)
}

type credentialChecker interface {
	Validate(ctx context.Context, creds *vault.Credentials) (bool, error)
}

type authGuardClearer interface {
	ClearAuthFailed(ctx context.Context, userID string)
}

// LessonService implements the user-facing operations: registering,
// storing credentials, and managing tracked lessons. Plaintext credentials
// live only inside SetCredentials and are wiped before it returns.
type LessonService struct {
	users     lessonUserRepository
	lessons   lessonRepository
	attempts  attemptHistoryRepository
	sealer    credentialSealer
	checker   credentialChecker
	notifier  authGuardClearer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs the service. checker may be nil, in which
// case credentials are stored without a portal round-trip.
func NewLessonService(users lessonUserRepository, lessons lessonRepository, attempts attemptHistoryRepository, sealer credentialSealer, checker credentialChecker, notifier authGuardClearer, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{
		users:     users,
		lessons:   lessons,
		attempts:  attempts,
		sealer:    sealer,
		checker:   checker,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
	}
}

// Register returns the user for the chat, creating the row on first
// contact.
func (s *LessonService) Register(ctx context.Context, chatID int64) (*models.User, error) {
	user, err := s.users.FindByChatID(ctx, chatID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, appErrors.ErrNotFound) {
		return nil, err
	}
	return s.users.Create(ctx, chatID)
}

// SetCredentials verifies and stores a fresh credential pair for the chat.
// The plaintext pair is sealed immediately and wiped on every exit path.
func (s *LessonService) SetCredentials(ctx context.Context, chatID int64, login, password string) error {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return appErrors.Clone(appErrors.ErrValidation, "login and password are required")
	}

	user, err := s.Register(ctx, chatID)
	if err != nil {
		return err
	}

	creds := vault.Credentials{Username: login, Password: []byte(password)}
	defer creds.Wipe()

	if s.checker != nil {
		ok, err := s.checker.Validate(ctx, &creds)
		if err != nil {
			// portal down is not the user's fault, store and let the
			// scheduler find out
			s.logger.Sugar().Warnw("credential validation unavailable", "chat_id", chatID, "error", err)
		} else if !ok {
			return appErrors.ErrAuthFailed
		}
	}

	blob, err := s.sealer.Seal(creds)
	if err != nil {
		return err
	}

	if err := s.users.SetCredentials(ctx, user.ID, login, blob); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.ClearAuthFailed(ctx, user.ID)
	}
	s.logger.Sugar().Infow("credentials updated", "chat_id", chatID)
	return nil
}

// AddLesson starts tracking a portal activity for the chat.
func (s *LessonService) AddLesson(ctx context.Context, chatID int64, url, name string) (*models.Lesson, error) {
	if err := s.validator.Var(url, "required,url"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lesson url is not a valid link")
	}

	user, err := s.Register(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.lessons.Create(ctx, user.ID, url, strings.TrimSpace(name))
}

// RemoveLesson stops tracking a lesson owned by the chat.
func (s *LessonService) RemoveLesson(ctx context.Context, chatID int64, lessonID string) error {
	user, err := s.users.FindByChatID(ctx, chatID)
	if err != nil {
		return err
	}
	return s.lessons.Delete(ctx, user.ID, lessonID)
}

// ToggleLesson flips scheduling for a lesson and returns the new state.
func (s *LessonService) ToggleLesson(ctx context.Context, chatID int64, lessonID string) (*models.Lesson, error) {
	user, err := s.users.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.lessons.Toggle(ctx, user.ID, lessonID)
}

// ListLessons returns all lessons tracked for the chat.
func (s *LessonService) ListLessons(ctx context.Context, chatID int64) ([]models.Lesson, error) {
	user, err := s.users.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.lessons.ListByUser(ctx, user.ID)
}

// StatusReport is the per-chat view served by the status endpoint.
type StatusReport struct {
	ChatID         int64                      `json:"chat_id"`
	HasCredentials bool                       `json:"has_credentials"`
	AuthFailedAt   *time.Time                 `json:"auth_failed_at,omitempty"`
	Lessons        []models.Lesson            `json:"lessons"`
	RecentAttempts []models.AttendanceAttempt `json:"recent_attempts"`
}

// Status assembles the chat's lessons and recent marking history.
func (s *LessonService) Status(ctx context.Context, chatID int64) (*StatusReport, error) {
	user, err := s.users.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	lessons, err := s.lessons.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.attempts.ListRecentByUser(ctx, user.ID, 20)
	if err != nil {
		return nil, err
	}

	return &StatusReport{
		ChatID:         user.ChatID,
		HasCredentials: user.HasCredentials(),
		AuthFailedAt:   user.AuthFailedAt,
		Lessons:        lessons,
		RecentAttempts: attempts,
	}, nil
}
