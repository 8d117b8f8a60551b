// Package api contains the API routes for the Attendance API
package api

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/nsvirk/attendanceapi/internal/api/handlers"
	"github.com/nsvirk/attendanceapi/internal/api/middleware"
	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/nsvirk/attendanceapi/pkg/utils/response"
)

// SetupRoutes configures the routes for the API
func SetupRoutes(e *echo.Echo, cfg *config.Config, svc *service.Services) {

	// Create a group for all API routes
	api := e.Group("/api")

	// Index route
	api.GET("/", indexRoute(cfg))

	auth := middleware.AuthMiddleware(cfg.JWTSecret)

	// Session routes (protected)
	sessionHandler := handlers.NewSessionHandler(svc.Sessions)
	sessionGroup := api.Group("/session")
	sessionGroup.Use(auth)
	sessionGroup.POST("/checkin", sessionHandler.CheckIn)
	sessionGroup.GET("/current", sessionHandler.GetCurrent)
	sessionGroup.GET("/:id", sessionHandler.GetSession)
	sessionGroup.POST("/:id/backsoon", sessionHandler.BackSoon)
	sessionGroup.POST("/:id/online", sessionHandler.BackOnline)
	sessionGroup.POST("/:id/checkout", sessionHandler.CheckOut)
	sessionGroup.POST("/:id/captcha", sessionHandler.CaptchaResult)
	sessionGroup.POST("/:id/face", sessionHandler.FaceVerified)

	// Tracking routes (protected, the beacon carries its token in the query)
	trackingHandler := handlers.NewTrackingHandler(svc.Trackers, svc.Presence)
	api.POST("/tracking/unload", trackingHandler.Unload, auth)

	// Presence routes (protected)
	api.GET("/presence/online", trackingHandler.OnlineUsers, auth)

	// Cron routes (service key or admin)
	cronHandler := handlers.NewCronHandler(svc.Reconciler, svc.Presence)
	cronGroup := api.Group("/cron")
	cronGroup.Use(middleware.ServiceKeyOrAdmin(cfg.JWTSecret, cfg.SweeperKeyHash))
	cronGroup.POST("/sweep", cronHandler.Sweep)

	// Websocket routes (protected)
	wsHandler := handlers.NewWSHandler(svc.Trackers, svc.Publisher)
	wsGroup := api.Group("/ws")
	wsGroup.Use(auth)
	wsGroup.GET("/track", wsHandler.Track)
	wsGroup.GET("/events", wsHandler.Events, middleware.AdminOnly)
}

// indexRoute returns the API name and version
func indexRoute(cfg *config.Config) echo.HandlerFunc {
	message := fmt.Sprintf("%s %s", cfg.APIName, cfg.APIVersion)
	return func(c echo.Context) error {
		return response.SuccessResponse(c, message)
	}
}
