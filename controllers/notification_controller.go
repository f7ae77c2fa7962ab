package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/HSouheill/barrim_notifier/middleware"
	"github.com/HSouheill/barrim_notifier/models"
	"github.com/HSouheill/barrim_notifier/repositories"
	"github.com/HSouheill/barrim_notifier/services"
	"github.com/HSouheill/barrim_notifier/websocket"
)

type NotificationController struct {
	notifications *services.NotificationService
	hub           *websocket.Hub
	log           zerolog.Logger
}

func NewNotificationController(notifications *services.NotificationService, hub *websocket.Hub, log zerolog.Logger) *NotificationController {
	return &NotificationController{
		notifications: notifications,
		hub:           hub,
		log:           log.With().Str("controller", "notification").Logger(),
	}
}

// GetUnread returns the authenticated user's unread index
func (nc *NotificationController) GetUnread(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
		})
	}

	refs, err := nc.notifications.UnreadIndex(c.Request().Context(), userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "User not found",
		})
	}
	if err != nil {
		nc.log.Error().Err(err).Str("userId", userID).Msg("failed to load unread index")
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load unread notifications",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Unread notifications retrieved",
		Data:    map[string]interface{}{"count": len(refs), "notifications": refs},
	})
}

// RepairUser rebuilds one user's unread index from its notifications
func (nc *NotificationController) RepairUser(c echo.Context) error {
	userID := c.Param("userId")
	report, err := nc.notifications.RepairUser(c.Request().Context(), userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "User not found",
		})
	}
	if err != nil {
		nc.log.Error().Err(err).Str("userId", userID).Msg("unread index repair failed")
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to repair unread index",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Unread index repaired",
		Data:    report,
	})
}

// RepairAll sweeps every user's unread index
func (nc *NotificationController) RepairAll(c echo.Context) error {
	report, err := nc.notifications.RepairAll(c.Request().Context())
	if err != nil {
		nc.log.Error().Err(err).Msg("unread index sweep failed")
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to sweep unread indexes",
			Data:    report,
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Unread index sweep complete",
		Data:    report,
	})
}

// WebSocket opens the live unread index channel for the authenticated user
func (nc *NotificationController) WebSocket(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
		})
	}
	return websocket.HandleWebSocket(c, nc.hub, userID)
}
