package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/barrim_notifier/controllers"
	"github.com/HSouheill/barrim_notifier/middleware"
)

// AdminUserType may run unread index maintenance
const AdminUserType = "admin"

// RegisterTriggerRoutes registers the endpoints the event platform calls
func RegisterTriggerRoutes(e *echo.Echo, tc *controllers.TriggerController, triggerToken string) {
	events := e.Group("/events")
	events.Use(middleware.RequireTriggerToken(triggerToken))

	// Item created
	events.POST("/items", tc.ItemCreated)
	// Notification document updated
	events.POST("/users/:userId/notifications/:notificationId", tc.NotificationUpdated)
}

// RegisterNotificationRoutes registers all notification-related user routes under /api
func RegisterNotificationRoutes(e *echo.Echo, nc *controllers.NotificationController, auth echo.MiddlewareFunc, limiter *middleware.RateLimiter) {
	api := e.Group("/api")
	api.Use(auth)
	if limiter != nil {
		api.Use(limiter.RateLimit())
	}

	api.GET("/notifications/unread", nc.GetUnread)
	api.GET("/ws", nc.WebSocket)

	maintenance := api.Group("/maintenance", middleware.RequireUserType(AdminUserType))
	maintenance.POST("/unread-index/repair", nc.RepairAll)
	maintenance.POST("/unread-index/:userId/repair", nc.RepairUser)
}
