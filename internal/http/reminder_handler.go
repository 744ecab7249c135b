package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/event-booking/internal/application"
)

type reminderService interface {
	Sweep(ctx context.Context) (application.SweepReport, error)
	SendManualReminder(ctx context.Context, eventID string) (application.DispatchSummary, error)
	Status() application.SweeperStatus
}

type ReminderHandler struct {
	service   reminderService
	responder responder
	logger    *slog.Logger
}

func NewReminderHandler(service reminderService, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{service: service, responder: newResponder(logger), logger: logger}
}

// Process runs one sweep in the request. Overlapping sweeps get 409.
func (h *ReminderHandler) Process(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	report, err := h.service.Sweep(c.Request().Context())
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, toSweepReportDTO(report))
}

func (h *ReminderHandler) SendReminder(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	eventID := strings.TrimSpace(c.Param("id"))
	if eventID == "" {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidEventID)
	}

	summary, err := h.service.SendManualReminder(c.Request().Context(), eventID)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}

	handlerLogger(c.Request().Context(), h.logger, "ReminderHandler", "SendReminder", "event_id", eventID).
		InfoContext(c.Request().Context(), "manual reminder requested", "emails_sent", summary.Sent)

	return h.responder.writeJSON(c, http.StatusOK, sendReminderResponse{Notifications: toDispatchDTO(summary)})
}

func (h *ReminderHandler) Status(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	status := h.service.Status()
	payload := sweeperStatusDTO{
		Running:   status.Running,
		Schedule:  status.Schedule,
		LastRunAt: formatOptionalTime(status.LastRunAt),
		NextRunAt: formatOptionalTime(status.NextRunAt),
	}
	if status.LastReport != nil {
		report := toSweepReportDTO(*status.LastReport)
		payload.LastReport = &report
	}
	return h.responder.writeJSON(c, http.StatusOK, payload)
}

type sendReminderResponse struct {
	Notifications dispatchDTO `json:"notifications"`
}

type sweepReportDTO struct {
	StartedAt       string `json:"started_at"`
	FinishedAt      string `json:"finished_at"`
	DurationMillis  int64  `json:"duration_ms"`
	Due             int    `json:"due"`
	Processed       int    `json:"processed"`
	SkippedInactive int    `json:"skipped_inactive"`
	Errors          int    `json:"errors"`
	EmailsSent      int    `json:"emails_sent"`
	EmailsFailed    int    `json:"emails_failed"`
	DeadlineReached bool   `json:"deadline_reached"`
}

func toSweepReportDTO(report application.SweepReport) sweepReportDTO {
	return sweepReportDTO{
		StartedAt:       formatTime(report.StartedAt),
		FinishedAt:      formatTime(report.FinishedAt),
		DurationMillis:  report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		Due:             report.Due,
		Processed:       report.Processed,
		SkippedInactive: report.SkippedInactive,
		Errors:          report.Errors,
		EmailsSent:      report.EmailsSent,
		EmailsFailed:    report.EmailsFailed,
		DeadlineReached: report.DeadlineReached,
	}
}

type sweeperStatusDTO struct {
	Running    bool            `json:"running"`
	Schedule   string          `json:"schedule,omitempty"`
	LastRunAt  *string         `json:"last_run_at,omitempty"`
	LastReport *sweepReportDTO `json:"last_report,omitempty"`
	NextRunAt  *string         `json:"next_run_at,omitempty"`
}
