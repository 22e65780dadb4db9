package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sdk-detect/sdk-detect-go/internal/api/handlers"
	"github.com/sdk-detect/sdk-detect-go/internal/config"
	"github.com/sdk-detect/sdk-detect-go/internal/middleware"
)

// SetupRouter 组装 HTTP 路由
func SetupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	scanHandler *handlers.ScanHandler,
	catalogHandler *handlers.CatalogHandler,
	eventHandler *handlers.EventHandler,
	promMetrics *middleware.PrometheusMetrics,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
		r.GET("/metrics", promMetrics.Handler())
	}

	// WebSocket 事件订阅
	r.GET("/ws/events", eventHandler.HandleWebSocket)

	v1 := r.Group("/api")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"version": "1.0.0",
			})
		})

		// 扫描任务
		v1.POST("/scans", scanHandler.CreateScan)
		v1.GET("/scans", scanHandler.ListScans)
		v1.GET("/scans/:id", scanHandler.GetScan)

		// 签名目录
		v1.GET("/catalog", catalogHandler.ListSignatures)
	}

	return r
}

// LoggerMiddleware 请求日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(startTime).Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
