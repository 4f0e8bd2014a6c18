package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rutinas/internal/cache"
	"github.com/rutinas/internal/config"
	"github.com/rutinas/internal/db"
	"github.com/rutinas/internal/handler"
	"github.com/rutinas/internal/logger"
	"github.com/rutinas/internal/router"
	"github.com/rutinas/internal/service"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	gdb, err := db.Init(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		DSN:    cfg.DatabaseDSN,
	})
	if err != nil {
		appLog.Fatal("failed to initialize database", "error", err)
	}

	var tzCache cache.TimezoneCache = cache.NewMemoryTimezoneCache(cfg.TimezoneCacheTTL)
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisTimezoneCache(appLog, cfg.RedisAddr, cfg.TimezoneCacheTTL)
		if err != nil {
			appLog.Warn("redis unavailable, using in-process timezone cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer redisCache.Close()
			tzCache = redisCache
		}
	}

	users := service.NewUserService(gdb, tzCache, cfg.DefaultTimezone, appLog)
	routines := service.NewRoutineService(db.NewRoutineStore(gdb), users, cfg.HistoryMaxDays, appLog)
	api := handler.NewAPI(routines, users, appLog)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.SetupRouter(api, cfg, appLog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("failed to run server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("server shutdown failed", "error", err)
	}
	appLog.Info("server stopped")
}
