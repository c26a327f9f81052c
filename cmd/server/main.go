package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/gpx-loop-cutter/internal/api"
	"github.com/jengzang/gpx-loop-cutter/internal/config"
	"github.com/jengzang/gpx-loop-cutter/internal/database"
	"github.com/jengzang/gpx-loop-cutter/internal/handler"
	"github.com/jengzang/gpx-loop-cutter/internal/logging"
	"github.com/jengzang/gpx-loop-cutter/internal/metrics"
	"github.com/jengzang/gpx-loop-cutter/internal/middleware"
	"github.com/jengzang/gpx-loop-cutter/internal/repository"
	"github.com/jengzang/gpx-loop-cutter/internal/service"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	issueToken := flag.String("issue-token", "", "print a bearer token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a token printed by -issue-token")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *issueToken != "" {
		token, err := middleware.IssueToken(cfg.Auth.JWTSecret, *issueToken, *tokenTTL)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化数据库
	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path}, logger)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Repos
	trackRepo := repository.NewTrackRepository(db, logger)
	runRepo := repository.NewRunRepository(db, logger)

	// Services
	trackSvc := service.NewTrackService(trackRepo, cfg.Simplify, logger)
	loopSvc := service.NewLoopService(trackSvc, runRepo, cfg.Loops, logger)

	// 初始化路由
	router := api.SetupRouter(cfg, api.Dependencies{
		Tracks: handler.NewTrackHandler(trackSvc, cfg.Server.MaxUploadBytes),
		Loops:  handler.NewLoopHandler(loopSvc),
		Ping:   db.PingContext,
		Logger: logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// pool gauges
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateDBStats(db.Stats())
			}
		}
	}()

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "db", cfg.Database.Path, "policy", cfg.Loops.Policy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
