package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/event-booking/internal/logging"
)

// RequestLogger attaches a request scoped logger carrying a sequential
// request id and logs the start and completion of every request.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	base = defaultLogger(base)
	var counter atomic.Uint64

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := counter.Add(1)
			req := c.Request()
			logger := base.With(
				"request_id", id,
				"method", req.Method,
				"path", req.URL.Path,
			)

			ctx := logging.ContextWithLogger(req.Context(), logger)
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(echo.HeaderXRequestID, strconv.FormatUint(id, 10))

			start := time.Now()
			logger.InfoContext(ctx, "request started")
			if err := next(c); err != nil {
				c.Error(err)
			}
			logger.InfoContext(ctx, "request completed",
				"status", c.Response().Status,
				"duration", time.Since(start),
			)
			return nil
		}
	}
}

// WithoutWriteDeadline lifts the server write timeout for routes that send
// mail before responding. Their duration grows with the recipient count and
// is bounded by the dispatcher send timeout and the sweep deadline instead.
func WithoutWriteDeadline(base *slog.Logger) echo.MiddlewareFunc {
	base = defaultLogger(base)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc := http.NewResponseController(c.Response().Writer)
			if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
				ctx := c.Request().Context()
				logging.FromContextOrDefault(ctx, base).WarnContext(ctx, "failed to clear write deadline", "error", err)
			}
			return next(c)
		}
	}
}
