package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dafibh/loansync/internal/auth"
	"github.com/dafibh/loansync/internal/config"
	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/handler"
	"github.com/dafibh/loansync/internal/middleware"
	"github.com/dafibh/loansync/internal/repository/onedrive"
	"github.com/dafibh/loansync/internal/repository/session"
	"github.com/dafibh/loansync/internal/repository/storage"
	"github.com/dafibh/loansync/internal/service"
	"github.com/dafibh/loansync/internal/websocket"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Session token store
	sessionStore, closeStore := newSessionStore(cfg)
	defer closeStore.Close()

	// Loan file storage, one client per login session
	tokenClient := auth.NewTokenClient(cfg.Drive, nil)
	blobStores := newBlobStoreFactory(cfg, tokenClient)

	// Push hub for loan and notice events
	hub := websocket.NewHub()

	sessions := service.NewSessionManager(sessionStore, blobStores, log.Logger, service.SessionManagerConfig{
		TTL:        cfg.SessionTTL,
		FolderName: cfg.Drive.FolderName,
		PageSize:   cfg.Drive.PageSize,
		Debounce:   cfg.Sync.Debounce,
		AutoSync:   cfg.Sync.AutoSync,
	})
	sessions.SetEventPublisher(hub)
	sessions.SetDisconnector(hub)

	sweeper := service.NewSessionSweeper(sessions, log.Logger, service.DefaultSessionSweeperConfig())
	sweeper.Start(context.Background())

	rateLimiter := middleware.NewRateLimiterWithConfig(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(tokenClient, sessions, handler.AuthHandlerConfig{
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.Env == "production",
	})
	loanHandler := handler.NewLoanHandler()
	wsHandler := handler.NewWebSocketHandler(hub, sessions, cfg.CORSOrigins)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, middleware.SessionHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"sessions": sessions.Count(),
			"clients":  hub.TotalClientCount(),
		})
	})

	// Register API routes
	handler.RegisterRoutes(e, sessions, rateLimiter, authHandler, loanHandler, wsHandler)

	// Start server in goroutine
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("storage", cfg.StorageBackend).
			Str("session_store", cfg.SessionStore).
			Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Pending uploads are flushed before exit
	sweeper.Stop()
	sessions.Close(ctx)
	rateLimiter.Stop()

	log.Info().Msg("Server exited")
}

func newSessionStore(cfg *config.Config) (domain.SessionStore, io.Closer) {
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		store, err := session.NewRedisStore(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to redis")
		return store, store
	default:
		store := session.NewMemoryStore(time.Minute)
		return store, store
	}
}

func newBlobStoreFactory(cfg *config.Config, refresher domain.TokenRefresher) service.BlobStoreFactory {
	if cfg.StorageBackend == config.StorageS3 {
		store, err := storage.NewS3BlobStore(context.Background(), cfg.S3, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Using S3 storage")
		return func(domain.TokenProvider, func()) domain.BlobStore { return store }
	}

	return func(tokens domain.TokenProvider, onAuthFailed func()) domain.BlobStore {
		return onedrive.NewClient(cfg.Drive.APIURL, tokens, refresher, onedrive.Options{
			RateLimit:    cfg.Drive.RateLimit,
			OnAuthFailed: onAuthFailed,
			Logger:       log.Logger,
		})
	}
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
