package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	"github.com/nickaq/tg-bot-schedule/internal/timetable"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

type timetableCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TimetableService serves per-user timetable slots, caching parsed results
// so a tick over many users does not re-read the source per lesson.
type TimetableService struct {
	source timetable.Source
	cache  timetableCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewTimetableService constructs the service.
func NewTimetableService(source timetable.Source, cache timetableCache, ttl time.Duration, logger *zap.Logger) *TimetableService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{source: source, cache: cache, ttl: ttl, logger: logger}
}

func timetableKey(user *models.User) string {
	return fmt.Sprintf("timetable:user:%s", user.ID)
}

// SlotsFor returns the user's timetable, from cache when fresh.
func (s *TimetableService) SlotsFor(ctx context.Context, user *models.User) ([]models.TimetableSlot, error) {
	key := timetableKey(user)

	if s.cache != nil {
		var cached []models.TimetableSlot
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Warnw("timetable cache read failed", "key", key, "error", err)
		}
	}

	slots, err := s.source.Slots(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load timetable: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, slots, s.ttl); err != nil {
			s.logger.Sugar().Warnw("timetable cache write failed", "key", key, "error", err)
		}
	}
	return slots, nil
}

// Invalidate drops the cached timetable for a user, used after the source
// file or export URL changes.
func (s *TimetableService) Invalidate(ctx context.Context, user *models.User) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, timetableKey(user)); err != nil {
		s.logger.Sugar().Warnw("timetable cache invalidation failed", "user_id", user.ID, "error", err)
	}
}
