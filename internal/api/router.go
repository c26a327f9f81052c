package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/gpx-loop-cutter/internal/config"
	"github.com/jengzang/gpx-loop-cutter/internal/handler"
	"github.com/jengzang/gpx-loop-cutter/internal/metrics"
	"github.com/jengzang/gpx-loop-cutter/internal/middleware"
)

// Dependencies 路由依赖
type Dependencies struct {
	Tracks *handler.TrackHandler
	Loops  *handler.LoopHandler
	Ping   func(context.Context) error // database health, optional
	Logger *slog.Logger
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(metrics.Middleware())

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		if deps.Ping != nil {
			if err := deps.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unavailable",
					"message": "database unreachable",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "GPX loop cutter is running",
		})
	})
	r.GET("/metrics", metrics.Handler())

	// 写操作: 鉴权 + 限流
	write := []gin.HandlerFunc{
		middleware.Auth(cfg.Auth.JWTSecret),
		middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateWindow),
	}

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 轨迹
		tracks := api.Group("/tracks")
		{
			tracks.GET("", deps.Tracks.ListTracks)
			tracks.POST("", append(write, deps.Tracks.UploadTrack)...)
			tracks.POST("/merge", append(write, deps.Tracks.MergeTracks)...)
			tracks.GET("/:id", deps.Tracks.GetTrack)
			tracks.DELETE("/:id", append(write, deps.Tracks.DeleteTrack)...)
			tracks.GET("/:id/gpx", deps.Tracks.ExportGPX)
			tracks.GET("/:id/geojson", deps.Tracks.ExportGeoJSON)
			tracks.POST("/:id/simplify", append(write, deps.Tracks.SimplifyTrack)...)

			tracks.POST("/:id/loops", append(write, deps.Loops.DetectLoops)...)
			tracks.GET("/:id/loops/runs", deps.Loops.ListRuns)
		}

		// 环路检测结果
		runs := api.Group("/loops")
		{
			runs.GET("/:run", deps.Loops.GetRun)
			runs.POST("/:run/excise", append(write, deps.Loops.ExciseLoops)...)
		}
	}

	return r
}
