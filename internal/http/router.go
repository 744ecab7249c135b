package http

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// APIPrefix is the path every API route is mounted under.
const APIPrefix = "/api/v1"

type RouterConfig struct {
	Events    *EventHandler
	Reminders *ReminderHandler
	Health    *HealthHandler
	Logger    *slog.Logger
	// BodyLimit caps request bodies, for example "1M". Empty disables the cap.
	BodyLimit string
}

// NewRouter assembles the echo instance serving the API.
func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = newResponder(cfg.Logger).httpErrorHandler

	e.Use(RequestLogger(cfg.Logger))
	e.Use(middleware.Recover())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.Health != nil {
		e.GET("/healthz", cfg.Health.Check)
	}

	api := e.Group(APIPrefix)
	dispatching := WithoutWriteDeadline(cfg.Logger)

	if cfg.Events != nil {
		api.POST("/events", cfg.Events.Create, dispatching)
		api.GET("/events", cfg.Events.List)
		api.GET("/events/:id", cfg.Events.Get)
		api.PATCH("/events/:id", cfg.Events.Update)
		api.DELETE("/events/:id", cfg.Events.Cancel)
		api.POST("/check-availability", cfg.Events.CheckAvailability)
		api.GET("/stats", cfg.Events.Stats)
		api.GET("/notifications", cfg.Events.Notifications)
	}

	if cfg.Reminders != nil {
		api.POST("/events/:id/send-reminder", cfg.Reminders.SendReminder, dispatching)
		api.POST("/process-reminders", cfg.Reminders.Process, dispatching)
		api.GET("/reminders/status", cfg.Reminders.Status)
	}

	return e
}
