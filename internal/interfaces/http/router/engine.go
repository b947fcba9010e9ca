package router

import (
	"github.com/gin-gonic/gin"
	"github.com/rosterlink/backend/internal/infrastructure/config"
	"github.com/rosterlink/backend/internal/infrastructure/logger"
	"github.com/rosterlink/backend/internal/interfaces/http/handler"
	"github.com/rosterlink/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Dependencies are the services and providers the engine serves
type Dependencies struct {
	Config     *config.Config
	Logger     *zap.Logger
	Tokens     middleware.TokenValidator
	Facilities handler.FacilityService
	Settings   handler.SettingsService
	DB         handler.Pinger
	Version    string

	// Meter and TracerProvider are optional; nil disables the layer
	Meter          metric.Meter
	TracerProvider trace.TracerProvider
}

// NewEngine builds the gin engine with the full middleware chain:
// request id, recovery, access log, security headers, CORS, body limit,
// tracing, metrics and profiling labels. /health is public; everything
// under /api/v1 requires a bearer token.
func NewEngine(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			return nil, err
		}
	} else if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(corsConfig(cfg.HTTP)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	tracing := middleware.DefaultTracingConfig()
	tracing.Enabled = cfg.Telemetry.Enabled || deps.TracerProvider != nil
	tracing.TracerProvider = deps.TracerProvider
	if cfg.Telemetry.ServiceName != "" {
		tracing.ServiceName = cfg.Telemetry.ServiceName
	}
	engine.Use(middleware.TracingWithConfig(tracing))
	if tracing.Enabled {
		engine.Use(middleware.SpanAttributes())
	}
	engine.Use(middleware.HTTPMetrics(deps.Meter))

	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = cfg.Telemetry.ProfilingEnabled
	engine.Use(middleware.ProfilingWithConfig(profiling))

	health := handler.NewHealthHandler(deps.DB, deps.Version)
	engine.GET("/health", health.Health)
	engine.GET("/api/v1/health", health.Health)

	jwtConfig := middleware.DefaultJWTConfig(deps.Tokens)
	jwtConfig.Logger = log

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))
	r.Register(syncRoutes(handler.NewSyncHandler(deps.Settings)))
	r.Register(facilityRoutes(handler.NewFacilityHandler(deps.Facilities), cfg.HTTP))
	r.Setup()

	return engine, nil
}

func syncRoutes(h *handler.SyncHandler) *DomainGroup {
	return NewDomainGroup("sync", "/sync").
		GET("", h.Get).
		PUT("", h.Put).
		DELETE("", h.Delete)
}

func facilityRoutes(h *handler.FacilityHandler, cfg config.HTTPConfig) *DomainGroup {
	limiter := middleware.NewRateLimiter(cfg.AuthRatePerMinute, cfg.AuthRateBurst)

	return NewDomainGroup("facilities", "/facilities").
		GET("", h.ListPlatforms).
		POST("/:platform/authenticate", middleware.RateLimit(limiter), h.Authenticate).
		POST("/:platform/activities", h.ImportActivities).
		POST("/:platform/orders", h.ImportOrders).
		GET("/:platform/catalog", h.Catalog)
}

func corsConfig(cfg config.HTTPConfig) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.CORSAllowOrigins
	}
	if len(cfg.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.CORSAllowHeaders
	}
	return cors
}
