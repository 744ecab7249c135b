package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/example/event-booking/internal/logging"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	t.Run("assigns sequential request ids and a scoped logger", func(t *testing.T) {
		t.Parallel()

		var out syncBuffer
		base := slog.New(slog.NewTextHandler(&out, nil))

		e := echo.New()
		e.Use(RequestLogger(base))
		e.GET("/ping", func(c echo.Context) error {
			if logging.FromContext(c.Request().Context()) == nil {
				t.Error("expected request logger in context")
			}
			return c.NoContent(http.StatusNoContent)
		})

		for _, want := range []string{"1", "2"} {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
			if got := rec.Header().Get(echo.HeaderXRequestID); got != want {
				t.Fatalf("expected request id %s, got %q", want, got)
			}
		}

		logs := out.String()
		if !strings.Contains(logs, "request started") || !strings.Contains(logs, "request completed") {
			t.Fatalf("expected start and completion lines, got %q", logs)
		}
		if !strings.Contains(logs, "status=204") || !strings.Contains(logs, "request_id=2") {
			t.Fatalf("expected status and request id attributes, got %q", logs)
		}
	})

	t.Run("logs the status of failed handlers", func(t *testing.T) {
		t.Parallel()

		var out syncBuffer
		e := echo.New()
		e.HTTPErrorHandler = newResponder(discardLogger()).httpErrorHandler
		e.Use(RequestLogger(slog.New(slog.NewTextHandler(&out, nil))))
		e.GET("/fail", func(echo.Context) error {
			return echo.NewHTTPError(http.StatusTeapot, "short and stout")
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("expected 418, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "short and stout") {
			t.Fatalf("expected error message in body, got %q", rec.Body.String())
		}
		if !strings.Contains(out.String(), "status=418") {
			t.Fatalf("expected logged status 418, got %q", out.String())
		}
	})
}
