package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sa2kit/iatbridge/adapters/iflytek"
	"github.com/sa2kit/iatbridge/internal/api"
	"github.com/sa2kit/iatbridge/internal/config"
	"github.com/sa2kit/iatbridge/internal/websocket"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	// Initialize logger
	var logger *zap.Logger
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	if cfg.AppID == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		logger.Warn("IFLYTEK_APP_ID / IFLYTEK_API_KEY / IFLYTEK_API_SECRET not set; sessions will fail at start")
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Session bridge with its own store and upstream dialer
	adapter := iflytek.NewAdapter(
		iflytek.Config{
			AppID:     cfg.AppID,
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Host:      cfg.Host,
			Path:      cfg.Path,
			Language:  cfg.Language,
			Domain:    cfg.Domain,
			Accent:    cfg.Accent,
		},
		iflytek.NewWSDialer(10*time.Second),
		iflytek.NewMemoryStore(),
		logger,
	)

	// Initialize WebSocket hub with the session bridge
	hub := websocket.NewHub(adapter, logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
