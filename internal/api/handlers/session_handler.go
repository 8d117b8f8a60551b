// Package handlers contains the handlers for the API
package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/attendanceapi/internal/api/middleware"
	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/nsvirk/attendanceapi/pkg/utils/response"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

// SessionHandler is the handler for the session API
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new handler for the session API
func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type backSoonRequest struct {
	Reason       string `json:"reason" form:"reason"`
	CustomReason string `json:"custom_reason" form:"custom_reason"`
}

type checkOutRequest struct {
	Reason string `json:"reason" form:"reason"`
}

type captchaRequest struct {
	Success *bool `json:"success" form:"success"`
}

// CheckIn opens a session for the caller
func (h *SessionHandler) CheckIn(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	sess, err := h.service.CheckIn(c.Request().Context(), actor)
	if err != nil {
		return sessionError(c, err)
	}
	return response.CreatedResponse(c, sess)
}

// GetCurrent returns the caller's open session
func (h *SessionHandler) GetCurrent(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	sess, err := h.service.GetCurrent(c.Request().Context(), actor)
	if err != nil {
		return sessionError(c, err)
	}
	return response.SuccessResponse(c, sess)
}

// GetSession returns one session
func (h *SessionHandler) GetSession(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	sess, err := h.service.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return sessionError(c, err)
	}
	return response.SuccessResponse(c, sess)
}

// BackSoon starts a back-soon interval
func (h *SessionHandler) BackSoon(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	var req backSoonRequest
	if err := c.Bind(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, "Invalid request body")
	}
	if req.Reason == "" {
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, "`reason` is required")
	}
	sess, err := h.service.GoBackSoon(c.Request().Context(), actor, c.Param("id"), attendance.Reason(req.Reason), req.CustomReason)
	if err != nil {
		return sessionError(c, err)
	}
	return response.SuccessResponse(c, sess)
}

// BackOnline ends the open back-soon interval
func (h *SessionHandler) BackOnline(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	sess, err := h.service.BackOnline(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return sessionError(c, err)
	}
	return response.SuccessResponse(c, sess)
}

// CheckOut closes the session. Checking out a closed session returns it unchanged.
func (h *SessionHandler) CheckOut(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	var req checkOutRequest
	if err := c.Bind(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, "Invalid request body")
	}
	sess, err := h.service.CheckOut(c.Request().Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		return sessionError(c, err)
	}
	return response.SuccessResponse(c, sess)
}

// CaptchaResult records a captcha attempt
func (h *SessionHandler) CaptchaResult(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	var req captchaRequest
	if err := c.Bind(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, "Invalid request body")
	}
	if req.Success == nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, "`success` is required")
	}
	sess, err := h.service.RecordCaptchaResult(c.Request().Context(), actor, c.Param("id"), *req.Success)
	if err != nil {
		return sessionError(c, err)
	}
	return response.SuccessResponse(c, sess)
}

// FaceVerified records a completed face verification
func (h *SessionHandler) FaceVerified(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	sess, err := h.service.RecordFaceVerification(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return sessionError(c, err)
	}
	return response.SuccessResponse(c, sess)
}

// sessionError maps service errors onto HTTP responses
func sessionError(c echo.Context, err error) error {
	switch {
	case attendance.IsValidation(err):
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return response.ErrorResponse(c, http.StatusForbidden, response.PermissionException, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return response.ErrorResponse(c, http.StatusNotFound, response.NotFoundException, "Session not found")
	case errors.Is(err, service.ErrSessionActive),
		errors.Is(err, attendance.ErrAlreadyBackSoon),
		errors.Is(err, attendance.ErrNotBackSoon),
		errors.Is(err, attendance.ErrSessionClosed):
		return response.ErrorResponse(c, http.StatusConflict, response.ConflictException, err.Error())
	}
	zaplogger.Error("Session request failed", zaplogger.Fields{
		"path":  c.Path(),
		"error": err,
	})
	return response.ErrorResponse(c, http.StatusInternalServerError, response.ServerException, "Internal server error")
}
