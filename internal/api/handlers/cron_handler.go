package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/nsvirk/attendanceapi/pkg/utils/response"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

// CronHandler lets an external scheduler trigger the maintenance jobs
type CronHandler struct {
	reconciler *service.ReconcilerService
	presence   *service.PresenceService
}

// NewCronHandler creates a new CronHandler
func NewCronHandler(reconciler *service.ReconcilerService, presence *service.PresenceService) *CronHandler {
	return &CronHandler{reconciler: reconciler, presence: presence}
}

// SweepResponse is returned by the sweep endpoint
type SweepResponse struct {
	service.SweepResult
	UsersOffline int `json:"users_offline"`
}

// Sweep runs one stale session sweep followed by a presence cleanup
func (h *CronHandler) Sweep(c echo.Context) error {
	ctx := c.Request().Context()
	result, err := h.reconciler.Sweep(ctx)
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ServerException, err.Error())
	}
	changed, err := h.presence.Cleanup(ctx)
	if err != nil {
		// the sweep already ran; a failed cleanup is retried on the next call
		zaplogger.Warn("Presence cleanup failed", zaplogger.Fields{"error": err})
	}
	return response.SuccessResponse(c, SweepResponse{SweepResult: result, UsersOffline: changed})
}
