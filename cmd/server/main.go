// Package main is the entry point for the Attendance API
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/attendanceapi/internal/api"
	"github.com/nsvirk/attendanceapi/internal/api/middleware"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

func main() {
	// Load configuration
	cfg, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	timings, err := cfg.Timings()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Print the configuration
	fmt.Println(cfg.String())

	// Connect to Postgres
	db, err := repository.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}

	// Connect Redis
	redisClient, err := repository.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Init logger
	err = zaplogger.InitLogger(db)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Setup logger
	defer zaplogger.Sync()
	zaplogger.SetLogLevel(cfg.ServerLogLevel)

	// All timestamps are wall-clock readings in the business timezone
	clk, err := clock.LoadClock(cfg.Timezone)
	if err != nil {
		log.Fatalf("Failed to load timezone %q: %v", cfg.Timezone, err)
	}

	// startUpMessage
	zaplogger.Info(cfg.APIName + " - " + cfg.APIVersion + " initialized")
	zaplogger.Info("Postgres initialized")
	zaplogger.Info("Redis initialized")

	svc := service.NewServices(db, redisClient, clk, service.Options{
		Timings:      timings,
		PostgresDsn:  cfg.PostgresDsn,
		EventChannel: cfg.RedisSessionEventStream,
	})

	// Create a new Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Setup middleware
	middleware.SetupLoggerMiddleware(e)

	// Setup routes
	api.SetupRoutes(e, cfg, svc)

	// Setup and start cron jobs
	svc.Cron.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Relay session changes from Postgres to Redis
	go func() {
		if err := svc.Publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zaplogger.Error("Session event relay stopped", zaplogger.Fields{"error": err})
		}
	}()

	// Apply session changes made by any instance to the open tabs
	events, err := svc.Publisher.Subscribe(ctx)
	if err != nil {
		zaplogger.Error("Failed to follow session events", zaplogger.Fields{"error": err})
	} else {
		go svc.Trackers.Follow(events)
	}

	// Start the server
	go startServer(e, cfg)

	<-ctx.Done()
	zaplogger.Info("SHUTTING DOWN")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zaplogger.Error("Server shutdown failed", zaplogger.Fields{"error": err})
	}
	svc.Trackers.StopAll()
	svc.Cron.Stop()
}

// startServer starts the Echo server on the specified port
func startServer(e *echo.Echo, cfg *config.Config) {
	port := cfg.ServerPort
	if port == "" {
		port = "3007"
	}
	zaplogger.Info("SERVER STARTED ON PORT " + port)
	if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zaplogger.Error("Server stopped", zaplogger.Fields{"error": err})
		os.Exit(1)
	}
}
