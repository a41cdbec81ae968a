package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/nickaq/tg-bot-schedule/internal/bot"
	"github.com/nickaq/tg-bot-schedule/internal/handler"
	"github.com/nickaq/tg-bot-schedule/internal/notify"
	"github.com/nickaq/tg-bot-schedule/internal/portal"
	"github.com/nickaq/tg-bot-schedule/internal/repository"
	"github.com/nickaq/tg-bot-schedule/internal/service"
	"github.com/nickaq/tg-bot-schedule/internal/timetable"
	"github.com/nickaq/tg-bot-schedule/internal/vault"
	"github.com/nickaq/tg-bot-schedule/pkg/cache"
	"github.com/nickaq/tg-bot-schedule/pkg/config"
	"github.com/nickaq/tg-bot-schedule/pkg/database"
	"github.com/nickaq/tg-bot-schedule/pkg/jobs"
	"github.com/nickaq/tg-bot-schedule/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logr.Info("shutdown signal received")
		cancel()
	}()

	db, err := database.New(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connect failed", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logr.Sugar().Fatalw("migration failed", "error", err)
	}

	var redisClient *redis.Client
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, falling back to in-process guards", "error", err)
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	loc, err := time.LoadLocation(cfg.Timetable.Timezone)
	if err != nil {
		logr.Sugar().Warnw("unknown timezone, using UTC", "tz", cfg.Timetable.Timezone)
		loc = time.UTC
	}

	userRepo := repository.NewUserRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	credVault, err := vault.New(cfg.Vault)
	if err != nil {
		logr.Sugar().Fatalw("vault init failed", "error", err)
	}

	portalClient := portal.New(cfg.Portal, logr)
	telegram := notify.NewTelegram(cfg.Telegram, logr)

	matcher := timetable.NewMatcher(cfg.Scheduler.GraceBefore, cfg.Scheduler.GraceAfter, loc, nil, logr)
	slotSource := &timetable.FileSource{Path: cfg.Timetable.FilePath, Loc: loc}

	metrics := service.NewMetricsService()
	timetables := service.NewTimetableService(slotSource, cacheRepo, cfg.Timetable.CacheTTL, logr)
	tracker := service.NewTrackerService(attemptRepo, cfg.Scheduler.RetryInterval, cfg.Scheduler.MaxRetries, logr)
	notifier := service.NewNotifierService(telegram, cacheRepo, logr)
	lessons := service.NewLessonService(userRepo, lessonRepo, attemptRepo, credVault, portalClient, notifier, nil, logr)

	scheduler := service.NewSchedulerService(service.SchedulerDeps{
		Users:      userRepo,
		Lessons:    lessonRepo,
		Timetables: timetables,
		Matcher:    matcher,
		Tracker:    tracker,
		Vault:      credVault,
		Portal:     portalClient,
		Notifier:   notifier,
		Pool:       jobs.NewPool(jobs.PoolConfig{Workers: cfg.Scheduler.WorkerConcurrency, Logger: logr}),
		Metrics:    metrics,
	}, cfg.Scheduler, logr)

	commandBot := bot.New(telegram, lessons, logr)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		commandBot.Run(ctx)
	}()

	router := handler.NewRouter(
		handler.NewStatusHandler(lessons),
		handler.NewMetricsHandler(metrics),
		logr,
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	go func() {
		logr.Sugar().Infow("status server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("status server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("status server shutdown failed", "error", err)
	}

	wg.Wait()
	logr.Info("bot stopped")
}
