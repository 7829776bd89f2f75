package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"user-admin-server/internal/config"
	"user-admin-server/internal/http/handlers"
	"user-admin-server/internal/http/middleware"
	"user-admin-server/internal/services"
)

type Dependencies struct {
	Config      *config.Config
	UserService *services.UserService
	Tokens      middleware.TokenVerifier
	Logger      *slog.Logger
	// UploadDir is served under /uploads when avatars live on disk.
	UploadDir   string
	HealthCheck func(ctx context.Context) error
}

func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	router := gin.New()
	router.MaxMultipartMemory = 8 << 20
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(deps.Config.AllowedOrigins))

	authHandler := handlers.NewAuthHandler(deps.UserService)
	userHandler := handlers.NewUserHandler(deps.UserService)
	healthHandler := handlers.NewHealthHandler(deps.HealthCheck)

	router.GET("/healthz", healthHandler.Health)
	if deps.UploadDir != "" {
		router.Static("/uploads", deps.UploadDir)
	}

	api := router.Group("/api")
	{
		api.POST("/login", authHandler.Login)
		api.POST("/users", userHandler.Create)
	}

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(deps.Tokens, deps.Logger))
	{
		protected.GET("/users", userHandler.List)
		protected.GET("/profile", authHandler.Profile)
		protected.POST("/users/import", userHandler.Import)
		protected.PUT("/users/:id", userHandler.Update)
		protected.DELETE("/users/:id", userHandler.Delete)
	}

	return router
}
