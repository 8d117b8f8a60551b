package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/attendanceapi/internal/api/middleware"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/nsvirk/attendanceapi/pkg/utils/response"
)

// TrackingHandler is the handler for liveness signals sent over plain HTTP
type TrackingHandler struct {
	trackers *service.TrackerService
	presence *service.PresenceService
}

// NewTrackingHandler creates a new TrackingHandler
func NewTrackingHandler(trackers *service.TrackerService, presence *service.PresenceService) *TrackingHandler {
	return &TrackingHandler{trackers: trackers, presence: presence}
}

// Unload receives the page teardown beacon. The cleanup writes run detached
// and the response never waits for them.
func (h *TrackingHandler) Unload(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		sessionID = c.FormValue("session_id")
	}
	h.trackers.Unload(actor.UserID, sessionID)
	return c.NoContent(http.StatusNoContent)
}

// OnlineUsers lists the users the presence cache considers online
func (h *TrackingHandler) OnlineUsers(c echo.Context) error {
	online, err := h.presence.ListOnline(c.Request().Context())
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ServerException, err.Error())
	}
	if online == nil {
		online = []repository.Presence{}
	}
	return response.SuccessResponse(c, online)
}
