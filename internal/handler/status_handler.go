package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nickaq/tg-bot-schedule/internal/service"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
	"github.com/nickaq/tg-bot-schedule/pkg/response"
)

type statusService interface {
	Status(ctx context.Context, chatID int64) (*service.StatusReport, error)
}

// StatusHandler exposes a read-only view of a chat's tracked lessons and
// marking history.
type StatusHandler struct {
	service statusService
}

// NewStatusHandler constructs the handler.
func NewStatusHandler(service statusService) *StatusHandler {
	return &StatusHandler{service: service}
}

// ByChat serves GET /status/:chatId.
func (h *StatusHandler) ByChat(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "chatId must be numeric"))
		return
	}

	report, err := h.service.Status(c.Request.Context(), chatID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}
