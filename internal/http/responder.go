package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/event-booking/internal/application"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errInvalidEventID = errors.New("event id is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(c echo.Context, status int, payload any) error {
	if status == http.StatusNoContent || payload == nil {
		return c.NoContent(status)
	}
	return c.JSON(status, payload)
}

func (r responder) writeError(c echo.Context, status int, err error) error {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(c).WarnContext(c.Request().Context(), "request failed", "status", status, "error", err)
	}
	return r.writeJSON(c, status, errorResponse{Message: message})
}

func (r responder) writeValidation(c echo.Context, fields map[string]string) error {
	return r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
		ErrorCode: "VALIDATION_FAILED",
		Message:   statusMessage(http.StatusUnprocessableEntity),
		Errors:    fields,
	})
}

func (r responder) handleServiceError(c echo.Context, err error) error {
	if err == nil {
		return r.writeError(c, http.StatusInternalServerError, errors.New("unknown error"))
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		return r.writeValidation(c, vErr.FieldErrors)
	}

	var conflict *application.ConflictError
	if errors.As(err, &conflict) {
		return r.writeJSON(c, http.StatusConflict, errorResponse{
			ErrorCode: "TIME_SLOT_CONFLICT",
			Message:   conflict.Error(),
			Conflicts: toEventDTOs(conflict.Conflicts),
		})
	}

	switch {
	case errors.Is(err, application.ErrNotFoundOrNotScheduled), errors.Is(err, application.ErrNotFound):
		return r.writeJSON(c, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, application.ErrSweepInProgress):
		return r.writeJSON(c, http.StatusConflict, errorResponse{ErrorCode: "SWEEP_IN_PROGRESS", Message: err.Error()})
	case errors.Is(err, application.ErrAlreadyExists):
		return r.writeJSON(c, http.StatusConflict, errorResponse{ErrorCode: "ALREADY_EXISTS", Message: err.Error()})
	}

	r.loggerFor(c).ErrorContext(c.Request().Context(), "unexpected service error", "error", err)
	return r.writeJSON(c, http.StatusInternalServerError, errorResponse{
		ErrorCode: "INTERNAL",
		Message:   statusMessage(http.StatusInternalServerError),
	})
}

// httpErrorHandler renders errors raised by echo itself, such as unknown
// routes or oversized bodies, in the API error format.
func (r responder) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := statusMessage(status)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		message = statusMessage(status)
		if msg, ok := httpErr.Message.(string); ok && msg != "" {
			message = msg
		}
	} else {
		r.loggerFor(c).ErrorContext(c.Request().Context(), "unhandled error", "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, errorResponse{Message: message})
}

func (r responder) loggerFor(c echo.Context) *slog.Logger {
	return handlerLogger(c.Request().Context(), r.logger, "responder", "")
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request could not be understood"
	case http.StatusNotFound:
		return "the requested resource was not found"
	case http.StatusMethodNotAllowed:
		return "method not allowed"
	case http.StatusConflict:
		return "the request conflicts with the current state of the resource"
	case http.StatusUnprocessableEntity:
		return "validation failed"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	default:
		return "internal server error"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflicts []eventDTO        `json:"conflicts,omitempty"`
}
