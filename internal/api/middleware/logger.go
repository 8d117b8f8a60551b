// Package middleware provides the middleware for the Echo instance
package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

// SetupLoggerMiddleware configures and adds middleware to the Echo instance.
// Requests are logged through zaplogger; websocket upgrades and unload
// beacons only at debug level since every tab sends them.
func SetupLoggerMiddleware(e *echo.Echo) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURIPath:  true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := zaplogger.Fields{
				"ip":      v.RemoteIP,
				"req":     v.Method,
				"uri":     v.URIPath,
				"status":  v.Status,
				"latency": v.Latency.String(),
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
			}
			switch {
			case v.Status >= 500:
				zaplogger.Error("REQUEST", fields)
			case isChatty(v.URIPath):
				zaplogger.Debug("REQUEST", fields)
			default:
				zaplogger.Info("REQUEST", fields)
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())
}

func isChatty(path string) bool {
	return strings.HasPrefix(path, "/api/ws/") || path == "/api/tracking/unload"
}
