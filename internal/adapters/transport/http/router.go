package http

import (
	"context"
	"time"

	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/transport/http/middleware"
	appsvc "github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/service"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	rateLimitCacheSize = 10_000
	rateLimitIdleTTL   = time.Hour
)

type Deps struct {
	Config   *config.Config
	Service  appsvc.Service
	Validate *validator.Validate
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Checks   map[string]HealthCheck
}

// NewRouter builds the gin engine. ctx bounds background work started by the
// middleware.
func NewRouter(ctx context.Context, d Deps) *gin.Engine {
	cfg := d.Config
	h := NewHandler(d.Service, d.Validate, d.Logger, cfg.FrontendRedirectURL, d.Checks)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.Logger))
	if d.Registry != nil {
		router.Use(middleware.NewMetrics(d.Registry).Handler())
	}
	if cfg.RateLimitRPS > 0 {
		router.Use(middleware.NewHTTPRateLimitPerIP(ctx, float64(cfg.RateLimitRPS), cfg.RateLimitBurst, rateLimitCacheSize, rateLimitIdleTTL))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			"Authorization",
			"X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	authed := middleware.RequireAuth(d.Service, h.fail)
	admin := middleware.RequireRole(model.RoleAdministrator, h.fail)

	router.POST("/signup", h.Signup)
	router.POST("/login", h.Login)
	router.POST("/refreshToken", h.RefreshToken)
	router.POST("/verifyToken", h.VerifyToken)
	router.GET("/federatedLogin", h.FederatedLogin)
	router.GET("/federatedRedirect", h.FederatedRedirect)

	router.GET("/me", authed, h.Me)
	router.PUT("/me", authed, h.UpdateMe)
	router.DELETE("/me", authed, h.DeleteMe)
	router.PUT("/me/password", authed, h.ChangePassword)
	router.POST("/logout", authed, h.Logout)

	router.GET("/users/:userId", authed, h.GetUser)
	router.PUT("/users/:userId", authed, admin, h.UpdateUser)
	router.PUT("/users/:userId/role", authed, admin, h.SetRole)
	router.DELETE("/users/:userId", authed, admin, h.DeleteUser)

	router.GET("/health", h.Health)
	if d.Registry != nil {
		router.GET("/metrics", middleware.Exposition(d.Registry))
	}
	return router
}
