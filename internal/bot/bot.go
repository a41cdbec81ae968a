package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	"github.com/nickaq/tg-bot-schedule/internal/notify"
	"github.com/nickaq/tg-bot-schedule/internal/service"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

type lessonOperations interface {
	Register(ctx context.Context, chatID int64) (*models.User, error)
	SetCredentials(ctx context.Context, chatID int64, login, password string) error
	AddLesson(ctx context.Context, chatID int64, url, name string) (*models.Lesson, error)
	RemoveLesson(ctx context.Context, chatID int64, lessonID string) error
	ToggleLesson(ctx context.Context, chatID int64, lessonID string) (*models.Lesson, error)
	ListLessons(ctx context.Context, chatID int64) ([]models.Lesson, error)
	Status(ctx context.Context, chatID int64) (*service.StatusReport, error)
}

type updatesAPI interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]notify.Update, error)
	Send(ctx context.Context, chatID int64, text string) error
}

const pollTimeout = 25 * time.Second

// Bot is the chat command surface. It long-polls the Bot API and maps
// commands onto the lesson service; all scheduling logic lives elsewhere.
type Bot struct {
	api     updatesAPI
	lessons lessonOperations
	logger  *zap.Logger
}

// New constructs the bot.
func New(api updatesAPI, lessons lessonOperations, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{api: api, lessons: lessons, logger: logger}
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("bot command loop started")
	var offset int64
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot command loop stopped")
			return
		default:
		}

		updates, err := b.api.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.logger.Sugar().Warnw("getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one inbound update.
func (b *Bot) HandleUpdate(ctx context.Context, update notify.Update) {
	chatID := update.ChatID()
	text := strings.TrimSpace(update.Text())
	if chatID == 0 || !strings.HasPrefix(text, "/") {
		return
	}

	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	args := fields[1:]

	reply := b.dispatch(ctx, chatID, command, args)
	if reply == "" {
		return
	}
	if err := b.api.Send(ctx, chatID, reply); err != nil {
		b.logger.Sugar().Warnw("reply failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) dispatch(ctx context.Context, chatID int64, command string, args []string) string {
	switch command {
	case "/start", "/help":
		if _, err := b.lessons.Register(ctx, chatID); err != nil {
			b.logger.Sugar().Errorw("register failed", "chat_id", chatID, "error", err)
		}
		return helpText

	case "/login":
		if len(args) != 2 {
			return "Usage: /login <username> <password>\nDelete the message afterwards."
		}
		if err := b.lessons.SetCredentials(ctx, chatID, args[0], args[1]); err != nil {
			return b.describeError(err, "Could not store your credentials.")
		}
		return "Credentials saved. Delete your /login message now."

	case "/add":
		if len(args) < 1 {
			return "Usage: /add <lesson url> [name]"
		}
		name := strings.Join(args[1:], " ")
		lesson, err := b.lessons.AddLesson(ctx, chatID, args[0], name)
		if err != nil {
			return b.describeError(err, "Could not add the lesson.")
		}
		return fmt.Sprintf("Tracking %s (id %s).", lesson.Label(), lesson.ID)

	case "/remove":
		if len(args) != 1 {
			return "Usage: /remove <lesson id>"
		}
		if err := b.lessons.RemoveLesson(ctx, chatID, args[0]); err != nil {
			return b.describeError(err, "Could not remove the lesson.")
		}
		return "Lesson removed."

	case "/toggle":
		if len(args) != 1 {
			return "Usage: /toggle <lesson id>"
		}
		lesson, err := b.lessons.ToggleLesson(ctx, chatID, args[0])
		if err != nil {
			return b.describeError(err, "Could not toggle the lesson.")
		}
		if lesson.Enabled {
			return fmt.Sprintf("%s is back on the schedule.", lesson.Label())
		}
		return fmt.Sprintf("%s is paused.", lesson.Label())

	case "/list":
		lessons, err := b.lessons.ListLessons(ctx, chatID)
		if err != nil {
			return b.describeError(err, "Could not list your lessons.")
		}
		return renderLessons(lessons)

	case "/status":
		report, err := b.lessons.Status(ctx, chatID)
		if err != nil {
			return b.describeError(err, "Could not load your status.")
		}
		return renderStatus(report)

	default:
		return "Unknown command. Try /help."
	}
}

func (b *Bot) describeError(err error, fallback string) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case appErrors.ErrValidation.Code:
			return appErr.Message
		case appErrors.ErrAuthFailed.Code:
			return "The portal rejected that login and password."
		case appErrors.ErrNotFound.Code:
			return "Nothing found by that id. /list shows your lessons."
		}
	}
	return fallback
}

const helpText = `I mark your class attendance on the portal automatically.

/login <username> <password> - store portal credentials
/add <url> [name] - track an attendance page
/list - show tracked lessons
/toggle <id> - pause or resume a lesson
/remove <id> - stop tracking a lesson
/status - credentials and recent marking history`

func renderLessons(lessons []models.Lesson) string {
	if len(lessons) == 0 {
		return "No lessons tracked yet. Add one with /add <url>."
	}
	var sb strings.Builder
	sb.WriteString("Tracked lessons:\n")
	for _, lesson := range lessons {
		state := "on"
		if !lesson.Enabled {
			state = "paused"
		}
		fmt.Fprintf(&sb, "• %s [%s] (id %s)\n", lesson.Label(), state, lesson.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderStatus(report *service.StatusReport) string {
	var sb strings.Builder
	if report.HasCredentials {
		sb.WriteString("Credentials: stored\n")
	} else {
		sb.WriteString("Credentials: missing, use /login\n")
	}
	if report.AuthFailedAt != nil {
		fmt.Fprintf(&sb, "Last login rejected at %s, send /login again\n",
			report.AuthFailedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&sb, "Lessons tracked: %d\n", len(report.Lessons))
	if len(report.RecentAttempts) > 0 {
		sb.WriteString("Recent attempts:\n")
		for _, attempt := range report.RecentAttempts {
			fmt.Fprintf(&sb, "• %s %s\n",
				attempt.OccurrenceStart.Format("Mon 15:04"), attempt.Status)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
