package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/alert-engine/internal/handler/health"
	"github.com/jwalitptl/alert-engine/internal/handler/prometheus"
	"github.com/jwalitptl/alert-engine/internal/middleware"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	health  *health.Handler
	metrics *prometheus.Handler
	api     []Handler
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	RequestTimeout   time.Duration
}

type Dependencies struct {
	Auth    *middleware.AuthMiddleware
	Health  *health.Handler
	Metrics *prometheus.Handler
	// API handlers are mounted under /api/v1 behind authentication.
	API []Handler

	AppMetrics *metrics.Metrics
	Logger     *logger.Logger
}

func NewRouter(deps Dependencies, config RouterConfig) (*Router, error) {
	if err := middleware.RegisterValidators(middleware.DefaultValidationConfig()); err != nil {
		return nil, err
	}

	engine := gin.New() // Use New() instead of Default() for more control
	log := deps.Logger.WithComponent("http")

	r := &Router{
		engine:  engine,
		auth:    deps.Auth,
		health:  deps.Health,
		metrics: deps.Metrics,
		api:     deps.API,
	}

	// Add core middlewares
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Metrics(deps.AppMetrics),
		middleware.ErrorHandler(log),
		middleware.Validation(middleware.DefaultValidationConfig()),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	r.setup()
	return r, nil
}

func (r *Router) setup() {
	if r.metrics != nil {
		r.engine.GET("/metrics", r.metrics.Handler())
	}

	api := r.engine.Group("/api/v1")

	// Add version header
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	if r.health != nil {
		r.health.RegisterRoutes(api)
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range r.api {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
