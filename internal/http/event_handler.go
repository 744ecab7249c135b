package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/event-booking/internal/application"
	"github.com/example/event-booking/internal/persistence"
)

type bookingService interface {
	CreateEvent(ctx context.Context, input application.CreateEventInput) (application.CreateEventResult, error)
	UpdateEvent(ctx context.Context, eventID string, patch application.EventPatch) (persistence.Event, error)
	CancelEvent(ctx context.Context, eventID string) error
	CheckAvailability(ctx context.Context, query application.AvailabilityQuery) (application.AvailabilityResult, error)
	GetEvent(ctx context.Context, eventID string) (application.EventDetails, error)
	ListEvents(ctx context.Context, params application.ListEventsParams) ([]persistence.Event, error)
	Stats(ctx context.Context) (application.Stats, error)
	ListNotifications(ctx context.Context, eventID string, limit int) ([]persistence.NotificationLog, error)
}

type EventHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service bookingService, logger *slog.Logger) *EventHandler {
	return &EventHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *EventHandler) Create(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	var req createEventRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	input, fieldErrors := req.toInput()
	if len(fieldErrors) > 0 {
		return h.responder.writeValidation(c, fieldErrors)
	}

	result, err := h.service.CreateEvent(c.Request().Context(), input)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}

	handlerLogger(c.Request().Context(), h.logger, "EventHandler", "Create", "event_id", result.Event.ID).
		InfoContext(c.Request().Context(), "event booked", "emails_sent", result.Dispatch.Sent, "emails_failed", result.Dispatch.Failed)

	return h.responder.writeJSON(c, http.StatusCreated, createEventResponse{
		Event:             toEventDTO(result.Event),
		Attendees:         toAttendeeDTOs(result.Attendees),
		Reminders:         toReminderDTOs(result.Reminders),
		AttendeesNotified: result.AttendeesNotified,
		Notifications:     toDispatchDTO(result.Dispatch),
	})
}

func (h *EventHandler) Update(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	eventID := strings.TrimSpace(c.Param("id"))
	if eventID == "" {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidEventID)
	}

	var req updateEventRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	patch, fieldErrors := req.toPatch()
	if len(fieldErrors) > 0 {
		return h.responder.writeValidation(c, fieldErrors)
	}

	event, err := h.service.UpdateEvent(c.Request().Context(), eventID, patch)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Cancel(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	eventID := strings.TrimSpace(c.Param("id"))
	if eventID == "" {
		return h.responder.writeError(c, http.StatusBadRequest, errInvalidEventID)
	}

	if err := h.service.CancelEvent(c.Request().Context(), eventID); err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusNoContent, nil)
}

func (h *EventHandler) Get(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	details, err := h.service.GetEvent(c.Request().Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, eventDetailsResponse{
		Event:     toEventDTO(details.Event),
		Attendees: toAttendeeDTOs(details.Attendees),
		Reminders: toReminderDTOs(details.Reminders),
	})
}

func (h *EventHandler) List(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	params, fieldErrors := buildListParams(c.QueryParams())
	if len(fieldErrors) > 0 {
		return h.responder.writeValidation(c, fieldErrors)
	}

	events, err := h.service.ListEvents(c.Request().Context(), params)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

func (h *EventHandler) CheckAvailability(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	fieldErrors := map[string]string{}
	start := parseTimeField(fieldErrors, "start", req.Start)
	end := parseTimeField(fieldErrors, "end", req.End)
	if len(fieldErrors) > 0 {
		return h.responder.writeValidation(c, fieldErrors)
	}

	result, err := h.service.CheckAvailability(c.Request().Context(), application.AvailabilityQuery{
		Start:          start,
		End:            end,
		ExcludeEventID: strings.TrimSpace(req.ExcludeEventID),
	})
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}

	conflicts := toEventDTOs(result.Conflicts)
	if conflicts == nil {
		conflicts = []eventDTO{}
	}
	return h.responder.writeJSON(c, http.StatusOK, availabilityResponse{Available: result.Available, Conflicts: conflicts})
}

func (h *EventHandler) Stats(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	stats, err := h.service.Stats(c.Request().Context())
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, statsResponse{
		TotalScheduled:  stats.TotalScheduled,
		ThisWeek:        stats.ThisWeek,
		Meetings:        stats.Meetings,
		NeedingReminder: stats.NeedingReminder,
		Upcoming:        toEventDTOs(stats.Upcoming),
	})
}

func (h *EventHandler) Notifications(c echo.Context) error {
	if h == nil || h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	limit := 0
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return h.responder.writeValidation(c, map[string]string{"limit": "limit must be an integer"})
		}
		limit = n
	}

	logs, err := h.service.ListNotifications(c.Request().Context(), strings.TrimSpace(c.QueryParam("event_id")), limit)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, listNotificationsResponse{Notifications: toNotificationDTOs(logs)})
}

type externalAttendeeRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type createEventRequest struct {
	Title       string                    `json:"title"`
	Category    string                    `json:"category"`
	Description string                    `json:"description"`
	Location    string                    `json:"location"`
	MeetingLink string                    `json:"meeting_link"`
	Start       string                    `json:"start"`
	End         string                    `json:"end"`
	CreatedBy   string                    `json:"created_by"`
	Attendees   []externalAttendeeRequest `json:"attendees"`
}

func (r createEventRequest) toInput() (application.CreateEventInput, map[string]string) {
	fieldErrors := map[string]string{}
	input := application.CreateEventInput{
		Title:       strings.TrimSpace(r.Title),
		Category:    persistence.EventCategory(strings.TrimSpace(r.Category)),
		Description: r.Description,
		Location:    strings.TrimSpace(r.Location),
		MeetingLink: strings.TrimSpace(r.MeetingLink),
		Start:       parseTimeField(fieldErrors, "start", r.Start),
		End:         parseTimeField(fieldErrors, "end", r.End),
		CreatedBy:   strings.TrimSpace(r.CreatedBy),
	}
	for _, attendee := range r.Attendees {
		input.ExternalAttendees = append(input.ExternalAttendees, application.ExternalAttendee{
			Email:       strings.TrimSpace(attendee.Email),
			DisplayName: strings.TrimSpace(attendee.DisplayName),
		})
	}
	return input, fieldErrors
}

type updateEventRequest struct {
	Title       *string `json:"title"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	MeetingLink *string `json:"meeting_link"`
	Start       *string `json:"start"`
	End         *string `json:"end"`
}

func (r updateEventRequest) toPatch() (application.EventPatch, map[string]string) {
	fieldErrors := map[string]string{}
	patch := application.EventPatch{
		Title:       trimmed(r.Title),
		Description: r.Description,
		Location:    trimmed(r.Location),
		MeetingLink: trimmed(r.MeetingLink),
	}
	if r.Category != nil {
		category := persistence.EventCategory(strings.TrimSpace(*r.Category))
		patch.Category = &category
	}
	if r.Start != nil {
		start := parseTimeField(fieldErrors, "start", *r.Start)
		patch.Start = &start
	}
	if r.End != nil {
		end := parseTimeField(fieldErrors, "end", *r.End)
		patch.End = &end
	}
	return patch, fieldErrors
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	out := strings.TrimSpace(*value)
	return &out
}

type availabilityRequest struct {
	Start          string `json:"start"`
	End            string `json:"end"`
	ExcludeEventID string `json:"exclude_event_id"`
}

type availabilityResponse struct {
	Available bool       `json:"available"`
	Conflicts []eventDTO `json:"conflicts"`
}

type eventResponse struct {
	Event eventDTO `json:"event"`
}

type createEventResponse struct {
	Event             eventDTO      `json:"event"`
	Attendees         []attendeeDTO `json:"attendees"`
	Reminders         []reminderDTO `json:"reminders"`
	AttendeesNotified int           `json:"attendees_notified"`
	Notifications     dispatchDTO   `json:"notifications"`
}

type eventDetailsResponse struct {
	Event     eventDTO      `json:"event"`
	Attendees []attendeeDTO `json:"attendees"`
	Reminders []reminderDTO `json:"reminders"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type statsResponse struct {
	TotalScheduled  int        `json:"total_scheduled"`
	ThisWeek        int        `json:"this_week"`
	Meetings        int        `json:"meetings"`
	NeedingReminder int        `json:"needing_reminder"`
	Upcoming        []eventDTO `json:"upcoming"`
}

type listNotificationsResponse struct {
	Notifications []notificationDTO `json:"notifications"`
}

type dispatchDTO struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

func toDispatchDTO(summary application.DispatchSummary) dispatchDTO {
	return dispatchDTO{Sent: summary.Sent, Failed: summary.Failed, Total: summary.Total}
}

type eventDTO struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Category       string  `json:"category"`
	Description    string  `json:"description,omitempty"`
	Location       string  `json:"location,omitempty"`
	MeetingLink    string  `json:"meeting_link,omitempty"`
	Start          string  `json:"start"`
	End            string  `json:"end"`
	Status         string  `json:"status"`
	ReminderSent   bool    `json:"reminder_sent"`
	ReminderSentAt *string `json:"reminder_sent_at,omitempty"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func toEventDTO(event persistence.Event) eventDTO {
	return eventDTO{
		ID:             event.ID,
		Title:          event.Title,
		Category:       string(event.Category),
		Description:    event.Description,
		Location:       event.Location,
		MeetingLink:    event.MeetingLink,
		Start:          formatTime(event.Start),
		End:            formatTime(event.End),
		Status:         string(event.Status),
		ReminderSent:   event.ReminderSent,
		ReminderSentAt: formatOptionalTime(event.ReminderSentAt),
		CreatedBy:      event.CreatedBy,
		CreatedAt:      formatTime(event.CreatedAt),
		UpdatedAt:      formatTime(event.UpdatedAt),
	}
}

func toEventDTOs(events []persistence.Event) []eventDTO {
	if len(events) == 0 {
		return nil
	}
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}

type attendeeDTO struct {
	ID               string  `json:"id"`
	RecipientID      *string `json:"recipient_id,omitempty"`
	Email            string  `json:"email"`
	DisplayName      string  `json:"display_name,omitempty"`
	NotificationSent bool    `json:"notification_sent"`
	NotifiedAt       *string `json:"notified_at,omitempty"`
}

func toAttendeeDTOs(attendees []persistence.Attendee) []attendeeDTO {
	out := make([]attendeeDTO, 0, len(attendees))
	for _, attendee := range attendees {
		out = append(out, attendeeDTO{
			ID:               attendee.ID,
			RecipientID:      attendee.RecipientID,
			Email:            attendee.Email,
			DisplayName:      attendee.DisplayName,
			NotificationSent: attendee.NotificationSent,
			NotifiedAt:       formatOptionalTime(attendee.NotifiedAt),
		})
	}
	return out
}

type reminderDTO struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	DueAt  string  `json:"due_at"`
	Sent   bool    `json:"sent"`
	SentAt *string `json:"sent_at,omitempty"`
}

func toReminderDTOs(reminders []persistence.Reminder) []reminderDTO {
	out := make([]reminderDTO, 0, len(reminders))
	for _, reminder := range reminders {
		out = append(out, reminderDTO{
			ID:     reminder.ID,
			Kind:   reminder.Kind,
			DueAt:  formatTime(reminder.DueAt),
			Sent:   reminder.Sent,
			SentAt: formatOptionalTime(reminder.SentAt),
		})
	}
	return out
}

type notificationDTO struct {
	ID             string `json:"id"`
	EventID        string `json:"event_id"`
	Kind           string `json:"kind"`
	RecipientEmail string `json:"recipient_email"`
	RecipientName  string `json:"recipient_name,omitempty"`
	Subject        string `json:"subject"`
	Status         string `json:"status"`
	MessageID      string `json:"message_id,omitempty"`
	Error          string `json:"error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toNotificationDTOs(logs []persistence.NotificationLog) []notificationDTO {
	out := make([]notificationDTO, 0, len(logs))
	for _, entry := range logs {
		out = append(out, notificationDTO{
			ID:             entry.ID,
			EventID:        entry.EventID,
			Kind:           string(entry.Kind),
			RecipientEmail: entry.RecipientEmail,
			RecipientName:  entry.RecipientName,
			Subject:        entry.Subject,
			Status:         string(entry.Status),
			MessageID:      entry.MessageID,
			Error:          entry.Error,
			CreatedAt:      formatTime(entry.CreatedAt),
		})
	}
	return out
}

func buildListParams(values url.Values) (application.ListEventsParams, map[string]string) {
	fieldErrors := map[string]string{}
	params := application.ListEventsParams{
		Category: persistence.EventCategory(strings.TrimSpace(values.Get("category"))),
		Status:   strings.TrimSpace(values.Get("status")),
	}

	if from := strings.TrimSpace(values.Get("from")); from != "" {
		ts := parseTimeField(fieldErrors, "from", from)
		params.From = &ts
	}
	if to := strings.TrimSpace(values.Get("to")); to != "" {
		ts := parseTimeField(fieldErrors, "to", to)
		params.To = &ts
	}
	if limit := strings.TrimSpace(values.Get("limit")); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			fieldErrors["limit"] = "limit must be an integer"
		}
		params.Limit = n
	}
	return params, fieldErrors
}

// parseTimeField accepts RFC 3339 timestamps and plain dates, read as UTC
// midnight. An empty value yields the zero time so the service reports it
// as missing.
func parseTimeField(fieldErrors map[string]string, field, value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts
	}
	fieldErrors[field] = field + " must be an RFC 3339 timestamp"
	return time.Time{}
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(ts *time.Time) *string {
	if ts == nil {
		return nil
	}
	formatted := formatTime(*ts)
	return &formatted
}
