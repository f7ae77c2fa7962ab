package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/barrim_notifier/controllers"
	"github.com/HSouheill/barrim_notifier/middleware"
)

// Deps are the handlers and middleware SetupRoutes wires
type Deps struct {
	Trigger      *controllers.TriggerController
	Notification *controllers.NotificationController
	Auth         echo.MiddlewareFunc
	RateLimiter  *middleware.RateLimiter
	TriggerToken string
	StoreDriver  string
}

// SetupRoutes configures all routes by calling individual route registration functions
func SetupRoutes(e *echo.Echo, d Deps) {
	e.Match([]string{http.MethodGet, http.MethodHead}, "/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
			"store":  d.StoreDriver,
		})
	})

	RegisterTriggerRoutes(e, d.Trigger, d.TriggerToken)
	RegisterNotificationRoutes(e, d.Notification, d.Auth, d.RateLimiter)
}
