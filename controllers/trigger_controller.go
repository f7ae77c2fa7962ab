package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/HSouheill/barrim_notifier/models"
	"github.com/HSouheill/barrim_notifier/services"
	"github.com/HSouheill/barrim_notifier/utils"
)

// TriggerController receives the events emitted by the document platform
type TriggerController struct {
	notifications *services.NotificationService
	log           zerolog.Logger
}

func NewTriggerController(notifications *services.NotificationService, log zerolog.Logger) *TriggerController {
	return &TriggerController{
		notifications: notifications,
		log:           log.With().Str("controller", "trigger").Logger(),
	}
}

// ItemCreated handles the "item created" event.
// A 500 means nothing was committed for the failed batch and the event can be redelivered.
func (tc *TriggerController) ItemCreated(c echo.Context) error {
	var item models.Item
	if err := c.Bind(&item); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	item = utils.SanitizeItem(item)
	if err := c.Validate(&item); err != nil || !utils.IsValidDocumentID(item.ID) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "A valid item id is required",
		})
	}

	result, err := tc.notifications.HandleItemCreated(c.Request().Context(), item)
	if err != nil {
		tc.log.Error().Err(err).Str("itemId", item.ID).Msg("item fan-out failed")
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fan out notifications",
			Data:    result,
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Notifications fanned out",
		Data:    result,
	})
}

// notificationChangeRequest is the body of a notification update event
type notificationChangeRequest struct {
	Before *models.NotificationSnapshot `json:"before"`
	After  *models.NotificationSnapshot `json:"after"`
}

// NotificationUpdated handles a notification field update for
// /events/users/:userId/notifications/:notificationId
func (tc *TriggerController) NotificationUpdated(c echo.Context) error {
	var req notificationChangeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	change := models.NotificationChange{
		UserID:         c.Param("userId"),
		NotificationID: c.Param("notificationId"),
		Before:         req.Before,
		After:          req.After,
	}
	if err := c.Validate(&change); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "User id and notification id are required",
		})
	}

	outcome, err := tc.notifications.HandleNotificationChange(c.Request().Context(), change)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update unread index",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Notification change processed",
		Data:    map[string]interface{}{"outcome": outcome},
	})
}
