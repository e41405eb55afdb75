package main

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"tenantauth/internal/auth"
	"tenantauth/internal/handler"
	"tenantauth/internal/middleware"
	"tenantauth/internal/store"
	"tenantauth/pkg/config"
	"tenantauth/pkg/database"
	"tenantauth/pkg/jwtutil"
	"tenantauth/pkg/logger"
	"tenantauth/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting tenant-auth service...", cfg.LogConfig()...)

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Wire up services
	gormStore := store.NewGormStore(db)
	codec := jwtutil.NewCodec(&jwtutil.Config{
		SigningKey: cfg.JWT.SigningKey,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	authority := auth.NewAuthority(gormStore, gormStore, hasher, codec,
		cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, log)
	evaluator := auth.NewEvaluator(gormStore)
	registrar := auth.NewRegistrar(gormStore, hasher, log)
	handler.Init(authority, registrar, evaluator, gormStore, hasher)

	// Periodic cleanup of expired revocation records; best-effort, never on
	// the request path
	go func() {
		ticker := time.NewTicker(cfg.Auth.RevocationPurgeEvery)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.DB.RequestTimeout)
			purged, err := authority.PurgeExpiredRevocations(ctx)
			cancel()
			if err != nil {
				log.Warn("Revocation purge failed", zap.Error(err))
				continue
			}
			if purged > 0 {
				prometheus.RecordRevocationsPurged(purged)
				log.Info("Purged expired revocation records", zap.Int64("count", purged))
			}
		}
	}()

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestID)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes - these don't belong under /api since they're for getting access to the API
	authRoutes := e.Group("/auth")
	authRoutes.POST("/login", handler.Login)
	authRoutes.POST("/register", handler.Register)
	authRoutes.POST("/refresh", handler.Refresh)
	authRoutes.POST("/logout", handler.Logout)

	// API routes - all require a valid access token
	api := e.Group("/api")
	api.Use(middleware.Authenticate(authority))

	// User management
	users := api.Group("/users")
	users.GET("/me", handler.GetProfile)
	users.PATCH("/profile", handler.UpdateProfile)
	users.POST("/change-password", handler.ChangePassword)
	users.POST("/me/deactivate", handler.DeactivateMe)

	// Tenant management - doesn't require tenant context
	tenants := api.Group("/tenants")
	tenants.POST("", handler.CreateTenant)
	tenants.GET("", handler.ListUserTenants)

	// Tenant-specific operations - require the token's tenant context
	tenantSpecific := api.Group("/tenants")
	tenantSpecific.Use(middleware.RequireTenantContext)
	tenantSpecific.GET("/:id", handler.GetTenant)
	tenantSpecific.DELETE("/:id", handler.DeleteTenant)

	// Tenant user management - requires tenant context
	tenantUsers := api.Group("/tenant-users")
	tenantUsers.Use(middleware.RequireTenantContext)
	tenantUsers.POST("", handler.BindUser)
	tenantUsers.DELETE("/:user_id", handler.RemoveUserFromTenant)

	// Start server
	log.Info("Starting server", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
