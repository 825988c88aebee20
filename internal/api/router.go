package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/app"
	iauth "github.com/charlesng35/groupchoice/internal/auth"
	"github.com/charlesng35/groupchoice/internal/handlers"
	"github.com/charlesng35/groupchoice/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, svc *Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if svc == nil {
		return nil, fmt.Errorf("services must be provided")
	}

	metricsEndpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if metricsEndpoint == "" {
		metricsEndpoint = "/metrics"
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(metricsEndpoint, "/health"))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	// Health endpoint (public)
	r.GET("/health", handlers.Health(db))

	requireAuth := middleware.Auth(jwt)
	optionalAuth := middleware.OptionalAuth(jwt)

	api := r.Group("/api")
	registerAuthRoutes(api, handlers.NewAuthHandler(svc.Users, svc.Auth, jwt, svc.Audit), requireAuth)
	registerGroupRoutes(api, handlers.NewGroupHandler(svc.Groups), requireAuth)
	registerSurveyRoutes(api, handlers.NewSurveyHandler(svc.Surveys), requireAuth, optionalAuth)

	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsEndpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
