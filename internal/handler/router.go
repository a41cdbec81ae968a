package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/pkg/logger"
)

// NewRouter assembles the health/status server. It is a small operational
// surface next to the bot, not a public API.
func NewRouter(status *StatusHandler, metrics *MetricsHandler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log))

	r.GET("/health", metrics.Health)
	r.GET("/ready", metrics.Health)
	r.GET("/metrics", metrics.Prometheus)
	r.GET("/engine", metrics.Engine)
	r.GET("/status/:chatId", status.ByChat)

	return r
}
