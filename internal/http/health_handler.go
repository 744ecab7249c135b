package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store     pinger
	timeout   time.Duration
	responder responder
}

func NewHealthHandler(store pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, timeout: 2 * time.Second, responder: newResponder(logger)}
}

func (h *HealthHandler) Check(c echo.Context) error {
	if h == nil || h.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.responder.loggerFor(c).ErrorContext(ctx, "health check failed", "error", err)
		return h.responder.writeJSON(c, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
	}
	return h.responder.writeJSON(c, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}
