package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/balaji-balu/vps-screener/internal/api/handlers"
	"github.com/balaji-balu/vps-screener/internal/api/middleware"
	"github.com/balaji-balu/vps-screener/internal/metrics"
)

type Options struct {
	CORSOrigins []string
	MetricsPath string
	// MetricsHandler serves MetricsPath; nil leaves the route off.
	MetricsHandler http.Handler
	// Updates enables GET /v1/status/stream when set.
	Updates handlers.Subscriber
}

func NewRouter(svc handlers.Fleet, life handlers.Readiness, logger *zap.Logger, m *metrics.Metrics, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORSMiddleware(opts.CORSOrigins...))

	r.GET("/", handlers.Hello)
	r.GET("/healthz", handlers.Healthz)
	r.GET("/readyz", func(c *gin.Context) { handlers.Readyz(c, life) })
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.MetricsHandler))
	}

	api := r.Group("/v1")
	{
		api.POST("/metrics", func(c *gin.Context) { handlers.SubmitMetrics(c, svc) })
		api.GET("/status", func(c *gin.Context) { handlers.GetStatus(c, svc) })
		api.GET("/tasks", func(c *gin.Context) { handlers.GetTasks(c, svc) })
		if opts.Updates != nil {
			api.GET("/status/stream", func(c *gin.Context) { handlers.StreamStatus(c, opts.Updates) })
		}
	}

	return r
}
