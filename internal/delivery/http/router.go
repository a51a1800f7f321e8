package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pybox/internal/config"
	"pybox/internal/delivery/http/middleware"
	"pybox/internal/usecase"
)

// RouterDeps carries everything the router needs to wire its handlers.
type RouterDeps struct {
	ExecuteUC       *usecase.ExecuteCodeUsecase
	ExecCfg         config.ExecutionConfig
	Logger          *zap.Logger
	RateLimitPerMin int
	MaxBodyBytes    int64
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps *RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(deps.Logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Service metadata and health (no rate limiting)
	rootHandler := NewRootHandler()
	router.GET("/", rootHandler.Root)

	healthHandler := NewHealthHandler(deps.ExecCfg, deps.Logger)
	router.GET("/health", healthHandler.Health)

	// API v1 group (rate limited, body capped)
	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimiter(deps.RateLimitPerMin))
	v1.Use(middleware.BodySizeLimit(deps.MaxBodyBytes))
	{
		execHandler := NewExecuteHandler(deps.ExecuteUC)
		v1.POST("/execute", execHandler.Execute)
	}

	return router
}
