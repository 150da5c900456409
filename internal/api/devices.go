package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/audiosessions/internal/dispatch"
	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/logger"
	"github.com/tphakala/audiosessions/internal/sessions"
)

// DeviceSummary is one entry of GET /api/v1/devices.
type DeviceSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	State        string `json:"state"`
	AppCount     int    `json:"app_count"`
	SessionCount int    `json:"session_count"`
	MovedCount   int    `json:"moved_count"`
}

// UnhideRequest is the body of POST /api/v1/devices/:id/unhide.
type UnhideRequest struct {
	ProcessID *uint32 `json:"process_id"`
}

// MoveRequest is the body of POST /api/v1/devices/:id/move.
type MoveRequest struct {
	AppID          string `json:"app_id"`
	TargetDeviceID string `json:"target_device_id"`
}

// MuteRequest is the body of PUT /api/v1/devices/:id/apps/:app/mute.
type MuteRequest struct {
	Muted *bool `json:"muted"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

func (s *Server) listDevices(c echo.Context) error {
	snaps, err := s.devices.SnapshotAll(c.Request().Context())
	if err != nil {
		return s.handleError(c, err, "failed to read devices")
	}

	out := make([]DeviceSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, s.summary(snap))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getDevice(c echo.Context) error {
	snap, err := s.devices.Snapshot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.handleError(c, err, "failed to read device")
	}
	return c.JSON(http.StatusOK, s.summary(snap))
}

func (s *Server) getApps(c echo.Context) error {
	snap, err := s.devices.Snapshot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.handleError(c, err, "failed to read device")
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) setAppMuted(c echo.Context) error {
	var req MuteRequest
	if err := c.Bind(&req); err != nil || req.Muted == nil {
		return s.handleError(c, errors.ValidationError("body must be {\"muted\": bool}"), "invalid request")
	}

	deviceID, appID := c.Param("id"), c.Param("app")
	if err := s.devices.SetAppMuted(c.Request().Context(), deviceID, appID, *req.Muted); err != nil {
		return s.handleError(c, err, "failed to change mute")
	}

	s.logger.Info("app mute changed",
		logger.String("device_id", deviceID),
		logger.String("app_id", appID),
		logger.Bool("muted", *req.Muted))
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) unhideProcess(c echo.Context) error {
	var req UnhideRequest
	if err := c.Bind(&req); err != nil || req.ProcessID == nil {
		return s.handleError(c, errors.ValidationError("body must be {\"process_id\": uint}"), "invalid request")
	}

	if err := s.devices.UnhideSessionsForProcess(c.Param("id"), *req.ProcessID); err != nil {
		return s.handleError(c, err, "failed to unhide sessions")
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) moveHiddenApp(c echo.Context) error {
	var req MoveRequest
	if err := c.Bind(&req); err != nil || req.AppID == "" || req.TargetDeviceID == "" {
		return s.handleError(c, errors.ValidationError("app_id and target_device_id are required"), "invalid request")
	}

	if err := s.devices.MoveHiddenAppsToDevice(c.Param("id"), req.AppID, req.TargetDeviceID); err != nil {
		return s.handleError(c, err, "failed to move sessions")
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) summary(snap sessions.DeviceSnapshot) DeviceSummary {
	return DeviceSummary{
		ID:           snap.DeviceID,
		Name:         s.devices.DeviceName(snap.DeviceID),
		State:        snap.State,
		AppCount:     len(snap.Apps),
		SessionCount: snap.SessionCount(),
		MovedCount:   len(snap.Moved),
	}
}

// handleError maps err to a status code and writes an ErrorResponse.
func (s *Server) handleError(c echo.Context, err error, message string) error {
	code := statusFor(err)
	resp := ErrorResponse{
		Error:         err.Error(),
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString(),
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
		logger.Int("code", code),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error(message, fields...)
	} else {
		s.logger.Debug(message, fields...)
	}

	return c.JSON(code, resp)
}

func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrClosed), errors.IsCategory(err, errors.CategoryState):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
