package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"user-admin-server/internal/auth"
	"user-admin-server/internal/config"
	"user-admin-server/internal/db"
	transport "user-admin-server/internal/http"
	"user-admin-server/internal/repo"
	"user-admin-server/internal/reqres"
	"user-admin-server/internal/services"
	"user-admin-server/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Env)

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	dbConn, err := db.Connect(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, dbConn.SQL); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	gormDB, err := db.OpenGorm(dbConn.SQL)
	if err != nil {
		logger.Error("failed to open orm", "error", err)
		os.Exit(1)
	}

	avatarBackend, uploadDir, err := newAvatarBackend(ctx, cfg)
	if err != nil {
		logger.Error("failed to set up avatar storage", "error", err)
		os.Exit(1)
	}

	userRepo := repo.NewUserRepo(gormDB, cfg.RequestTimeout)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiry)
	userService, err := services.NewUserService(
		userRepo,
		auth.NewPasswordHasher(bcrypt.DefaultCost),
		tokens,
		storage.NewAvatars(avatarBackend, cfg.UploadMaxBytes, cfg.UploadAllowedTypes),
		reqres.NewClient(cfg.ImportSourceURL, cfg.ImportAPIKey, cfg.ImportTimeout, cfg.ImportMaxPages),
		services.Options{PasswordMinLen: cfg.PasswordMinLen, Logger: logger},
	)
	if err != nil {
		logger.Error("failed to build user service", "error", err)
		os.Exit(1)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		UserService: userService,
		Tokens:      tokens,
		Logger:      logger,
		UploadDir:   uploadDir,
		HealthCheck: func(ctx context.Context) error {
			return db.Healthcheck(ctx, dbConn.SQL, 2*time.Second)
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// import walks several upstream pages
		WriteTimeout: cfg.RequestTimeout + time.Duration(cfg.ImportMaxPages)*cfg.ImportTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrors:
		logger.Error("http server stopped unexpectedly", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("http server stopped")
}

func newAvatarBackend(ctx context.Context, cfg *config.Config) (storage.Backend, string, error) {
	if cfg.AvatarS3.Enabled() {
		backend, err := storage.NewS3(ctx, cfg.AvatarS3)
		return backend, "", err
	}
	disk, err := storage.NewDisk(cfg.UploadDir)
	if err != nil {
		return nil, "", err
	}
	return disk, disk.Dir(), nil
}

func newLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env != "prod" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}
