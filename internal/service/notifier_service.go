package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/internal/models"
)

// Sender delivers one chat message. Implemented by the Telegram client.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type notifyGuard interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// guardTTL caps how long a streak guard can suppress a repeat message when
// the clearing path never runs, e.g. after a lesson is deleted mid-streak.
const guardTTL = 24 * time.Hour

// NotifierService turns engine events into chat messages. Terminal events
// fire once by construction; the streak-shaped ones (unresolved schedule,
// rejected credentials) are additionally deduplicated with guard keys so a
// user hears about an ongoing condition once, not every tick.
type NotifierService struct {
	sender Sender
	guards notifyGuard
	logger *zap.Logger
}

// NewNotifierService constructs the notifier.
func NewNotifierService(sender Sender, guards notifyGuard, logger *zap.Logger) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifierService{sender: sender, guards: guards, logger: logger}
}

// Notify delivers the event unconditionally. Delivery failures are logged
// and swallowed: a chat outage must never affect marking state.
func (n *NotifierService) Notify(ctx context.Context, event models.Event) {
	if n.sender == nil {
		return
	}
	text := renderEvent(event)
	if text == "" {
		return
	}
	if err := n.sender.Send(ctx, event.ChatID, text); err != nil {
		n.logger.Sugar().Errorw("notification delivery failed",
			"chat_id", event.ChatID, "kind", event.Kind, "error", err)
	}
}

// UnresolvedOnce reports an unresolvable lesson, at most once per streak.
func (n *NotifierService) UnresolvedOnce(ctx context.Context, lessonID string, event models.Event) {
	n.once(ctx, unresolvedGuardKey(lessonID), event)
}

// ClearUnresolved re-arms the unresolved notification after the lesson
// correlates again.
func (n *NotifierService) ClearUnresolved(ctx context.Context, lessonID string) {
	n.clear(ctx, unresolvedGuardKey(lessonID))
}

// AuthFailedOnce reports rejected credentials, at most once per streak.
func (n *NotifierService) AuthFailedOnce(ctx context.Context, userID string, event models.Event) {
	n.once(ctx, authGuardKey(userID), event)
}

// ClearAuthFailed re-arms the credential notification, called when the user
// stores fresh credentials.
func (n *NotifierService) ClearAuthFailed(ctx context.Context, userID string) {
	n.clear(ctx, authGuardKey(userID))
}

func (n *NotifierService) once(ctx context.Context, key string, event models.Event) {
	if n.guards != nil {
		fresh, err := n.guards.SetNX(ctx, key, guardTTL)
		if err != nil {
			n.logger.Sugar().Warnw("notification guard unavailable, sending anyway",
				"key", key, "error", err)
		} else if !fresh {
			return
		}
	}
	n.Notify(ctx, event)
}

func (n *NotifierService) clear(ctx context.Context, key string) {
	if n.guards == nil {
		return
	}
	if err := n.guards.Delete(ctx, key); err != nil {
		n.logger.Sugar().Warnw("notification guard clear failed", "key", key, "error", err)
	}
}

func unresolvedGuardKey(lessonID string) string {
	return "notify:unresolved:" + lessonID
}

func authGuardKey(userID string) string {
	return "notify:auth_failed:" + userID
}

func renderEvent(event models.Event) string {
	switch event.Kind {
	case models.EventMarked:
		return fmt.Sprintf("✅ Attendance marked: %s", event.LessonName)
	case models.EventAlreadyMarked:
		return fmt.Sprintf("ℹ️ Attendance for %s was already marked.", event.LessonName)
	case models.EventAuthFailed:
		return "🔒 The portal rejected your saved credentials. Please send them again with /login."
	case models.EventRetryExhausted:
		return fmt.Sprintf("⚠️ Could not mark attendance for %s, the portal kept failing. Please mark it manually.", event.LessonName)
	case models.EventUnresolved:
		return fmt.Sprintf("❔ %s does not match anything in your timetable, so it cannot be checked automatically.", event.LessonName)
	default:
		return ""
	}
}
