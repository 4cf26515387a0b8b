package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/ward-api/internal/config"
	"github.com/jwalitptl/ward-api/internal/handler/health"
	"github.com/jwalitptl/ward-api/internal/handler/prometheus"
	"github.com/jwalitptl/ward-api/internal/middleware"
	"github.com/jwalitptl/ward-api/pkg/httputil"
	"github.com/jwalitptl/ward-api/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	config   *config.Config
	log      *logger.Logger
	patientH Handler
	healthH  *health.Handler
	metricsH *prometheus.Handler
}

func NewRouter(
	cfg *config.Config,
	log *logger.Logger,
	patientH Handler,
	healthH *health.Handler,
	metricsH *prometheus.Handler,
) *Router {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	r := &Router{
		engine:   engine,
		config:   cfg,
		log:      log,
		patientH: patientH,
		healthH:  healthH,
		metricsH: metricsH,
	}

	// Core middlewares; the request logger must exist before recovery runs
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(),
		middleware.ErrorHandler(),
	)
	if metricsH != nil {
		engine.Use(metricsH.Middleware())
	}
	engine.Use(
		middleware.SecurityHeaders(cfg.Security),
		middleware.CORS(middleware.CORSFromOrigins(cfg.CORS.AllowedOrigins)),
	)

	return r
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine)

	if r.metricsH != nil && r.config.Metrics.Enabled {
		r.engine.GET(r.config.Metrics.Path, r.metricsH.Handler())
	}

	api := r.engine.Group("/v1")

	if r.config.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:    rate.Limit(r.config.RateLimit.RequestsPerSecond),
			Burst:   r.config.RateLimit.Burst,
			IdleTTL: 10 * time.Minute,
		})
		api.Use(limiter.RateLimit())
	}

	sizeLimit := middleware.DefaultSizeLimitConfig()
	if r.config.Server.MaxBodyBytes > 0 {
		sizeLimit.MaxBodySize = r.config.Server.MaxBodyBytes
	}
	api.Use(
		middleware.SizeLimit(sizeLimit),
		middleware.Timeout(middleware.TimeoutConfig{Duration: r.config.Server.RequestTimeout}),
	)

	r.patientH.RegisterRoutes(api)

	r.engine.NoRoute(func(c *gin.Context) {
		httputil.RespondWithStatus(c, http.StatusNotFound, "not_found", "route not found")
	})
	r.engine.NoMethod(func(c *gin.Context) {
		httputil.RespondWithStatus(c, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
