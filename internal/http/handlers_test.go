package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/event-booking/internal/application"
	"github.com/example/event-booking/internal/notification"
	"github.com/example/event-booking/internal/persistence/memory"
	"github.com/example/event-booking/internal/scheduler"
)

var referenceTime = time.Date(2025, time.January, 9, 8, 0, 0, 0, time.UTC)

type recordingTransport struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (r *recordingTransport) Send(_ context.Context, msg notification.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return "msg", nil
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type apiEnv struct {
	router    *echo.Echo
	store     *memory.Storage
	transport *recordingTransport
	now       time.Time
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	env := &apiEnv{store: memory.New(), transport: &recordingTransport{}, now: referenceTime}
	now := func() time.Time { return env.now }
	logger := discardLogger()

	dispatcher := notification.NewDispatcher(env.transport, notification.Options{
		MinSpacing: time.Millisecond,
		Audit:      env.store,
		Now:        now,
		Sleep:      func(context.Context, time.Duration) error { return nil },
		Logger:     logger,
	})
	planner := scheduler.NewReminderPlanner(nil, now)

	booking := application.NewBookingService(application.BookingServiceConfig{
		Store:      env.store,
		Dispatcher: dispatcher,
		Planner:    planner,
		Now:        now,
		Logger:     logger,
	})
	sweeper := application.NewReminderSweeper(application.ReminderSweeperConfig{
		Store:      env.store,
		Dispatcher: dispatcher,
		Schedule:   "@every 5m",
		Now:        now,
		Logger:     logger,
	})

	if _, err := booking.CreateRecipient(context.Background(), application.RecipientInput{Email: "alice@example.com", DisplayName: "Alice"}); err != nil {
		t.Fatalf("CreateRecipient returned error: %v", err)
	}

	env.router = NewRouter(RouterConfig{
		Events:    NewEventHandler(booking, logger),
		Reminders: NewReminderHandler(sweeper, logger),
		Health:    NewHealthHandler(env.store, logger),
		Logger:    logger,
		BodyLimit: "1M",
	})
	return env
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch v := body.(type) {
		case string:
			reader = strings.NewReader(v)
		default:
			payload, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("failed to encode body: %v", err)
			}
			reader = bytes.NewReader(payload)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func eventBody(title, start, end string) map[string]any {
	return map[string]any{
		"title":      title,
		"category":   "meeting",
		"start":      start,
		"end":        end,
		"created_by": "admin-1",
		"attendees":  []map[string]string{{"email": "guest@example.com", "display_name": "Guest"}},
	}
}

func (e *apiEnv) createEvent(t *testing.T, title, start, end string) eventDTO {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/events", eventBody(title, start, end))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[createEventResponse](t, rec).Event
}

func TestEventHandlers(t *testing.T) {
	t.Parallel()

	t.Run("books an event and reports the invitation tally", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)

		rec := env.do(t, http.MethodPost, "/api/v1/events", eventBody("Planning", "2025-01-10T10:00:00Z", "2025-01-10T11:00:00Z"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[createEventResponse](t, rec)
		if resp.Event.Status != "scheduled" || resp.Event.Start != "2025-01-10T10:00:00Z" {
			t.Fatalf("unexpected event %+v", resp.Event)
		}
		if len(resp.Attendees) != 2 || len(resp.Reminders) != 2 {
			t.Fatalf("expected 2 attendees and 2 reminders, got %+v", resp)
		}
		if resp.Notifications != (dispatchDTO{Sent: 2, Failed: 0, Total: 2}) || resp.AttendeesNotified != 2 {
			t.Fatalf("unexpected notification tally %+v", resp.Notifications)
		}
		if env.transport.count() != 2 {
			t.Fatalf("expected 2 invitations, got %d", env.transport.count())
		}
	})

	t.Run("maps conflicts to 409 with the conflicting events", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)
		existing := env.createEvent(t, "Existing", "2025-01-10T10:00:00Z", "2025-01-10T11:00:00Z")

		rec := env.do(t, http.MethodPost, "/api/v1/events", eventBody("Overlap", "2025-01-10T10:30:00Z", "2025-01-10T11:30:00Z"))
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[errorResponse](t, rec)
		if len(resp.Conflicts) != 1 || resp.Conflicts[0].ID != existing.ID {
			t.Fatalf("unexpected conflicts %+v", resp.Conflicts)
		}
		if resp.Message != `time slot conflicts with existing event "Existing"` {
			t.Fatalf("unexpected message %q", resp.Message)
		}
	})

	t.Run("maps validation failures to 422", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)

		rec := env.do(t, http.MethodPost, "/api/v1/events", eventBody("", "2025-01-10T11:00:00Z", "2025-01-10T10:00:00Z"))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		resp := decode[errorResponse](t, rec)
		if resp.Errors["title"] != "title is required" || resp.Errors["end"] != "start must be before end" {
			t.Fatalf("unexpected field errors %+v", resp.Errors)
		}

		rec = env.do(t, http.MethodPost, "/api/v1/events", eventBody("Planning", "tomorrow", "2025-01-10T10:00:00Z"))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 for malformed timestamp, got %d", rec.Code)
		}
		if errs := decode[errorResponse](t, rec).Errors; errs["start"] == "" {
			t.Fatalf("expected start field error, got %+v", errs)
		}
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)

		rec := env.do(t, http.MethodPost, "/api/v1/events", "{not json")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("gets, updates and cancels an event", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)
		event := env.createEvent(t, "Planning", "2025-01-10T10:00:00Z", "2025-01-10T11:00:00Z")
		path := "/api/v1/events/" + event.ID

		rec := env.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		details := decode[eventDetailsResponse](t, rec)
		if details.Event.ID != event.ID || len(details.Attendees) != 2 || len(details.Reminders) != 2 {
			t.Fatalf("unexpected details %+v", details)
		}

		rec = env.do(t, http.MethodPatch, path, map[string]any{"title": "Renamed", "end": "2025-01-10T12:00:00Z"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		updated := decode[eventResponse](t, rec).Event
		if updated.Title != "Renamed" || updated.End != "2025-01-10T12:00:00Z" {
			t.Fatalf("unexpected update %+v", updated)
		}

		for i := 0; i < 2; i++ {
			if rec = env.do(t, http.MethodDelete, path, nil); rec.Code != http.StatusNoContent {
				t.Fatalf("expected 204 on cancel %d, got %d", i+1, rec.Code)
			}
		}

		rec = env.do(t, http.MethodPatch, path, map[string]any{"title": "Again"})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 updating a cancelled event, got %d", rec.Code)
		}
		if rec = env.do(t, http.MethodGet, "/api/v1/events/missing", nil); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for unknown event, got %d", rec.Code)
		}
	})

	t.Run("lists events with filters", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)
		env.createEvent(t, "First", "2025-01-10T10:00:00Z", "2025-01-10T11:00:00Z")
		second := env.createEvent(t, "Second", "2025-01-11T10:00:00Z", "2025-01-11T11:00:00Z")

		rec := env.do(t, http.MethodGet, "/api/v1/events?from=2025-01-11&category=meeting", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		events := decode[listEventsResponse](t, rec).Events
		if len(events) != 1 || events[0].ID != second.ID {
			t.Fatalf("unexpected events %+v", events)
		}

		if rec = env.do(t, http.MethodGet, "/api/v1/events?limit=many", nil); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 for bad limit, got %d", rec.Code)
		}
	})

	t.Run("checks availability", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)
		event := env.createEvent(t, "Planning", "2025-01-10T10:00:00Z", "2025-01-10T11:00:00Z")

		rec := env.do(t, http.MethodPost, "/api/v1/check-availability", map[string]string{
			"start": "2025-01-10T10:30:00Z",
			"end":   "2025-01-10T11:30:00Z",
		})
		resp := decode[availabilityResponse](t, rec)
		if rec.Code != http.StatusOK || resp.Available || len(resp.Conflicts) != 1 {
			t.Fatalf("expected busy slot, got %d %+v", rec.Code, resp)
		}

		rec = env.do(t, http.MethodPost, "/api/v1/check-availability", map[string]string{
			"start":            "2025-01-10T10:30:00Z",
			"end":              "2025-01-10T11:30:00Z",
			"exclude_event_id": event.ID,
		})
		resp = decode[availabilityResponse](t, rec)
		if !resp.Available || resp.Conflicts == nil || len(resp.Conflicts) != 0 {
			t.Fatalf("expected free slot with empty conflicts, got %s", rec.Body.String())
		}
	})

	t.Run("reports stats and notification history", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)
		env.createEvent(t, "Planning", "2025-01-10T10:00:00Z", "2025-01-10T11:00:00Z")

		stats := decode[statsResponse](t, env.do(t, http.MethodGet, "/api/v1/stats", nil))
		if stats.TotalScheduled != 1 || stats.ThisWeek != 1 || stats.NeedingReminder != 1 || len(stats.Upcoming) != 1 {
			t.Fatalf("unexpected stats %+v", stats)
		}

		history := decode[listNotificationsResponse](t, env.do(t, http.MethodGet, "/api/v1/notifications?limit=1", nil))
		if len(history.Notifications) != 1 || history.Notifications[0].Kind != "invitation" {
			t.Fatalf("unexpected history %+v", history)
		}
		if rec := env.do(t, http.MethodGet, "/api/v1/notifications?limit=-1", nil); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 for negative limit, got %d", rec.Code)
		}
	})
}

func TestReminderHandlers(t *testing.T) {
	t.Parallel()

	t.Run("processes due reminders and reports status", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)
		env.createEvent(t, "Planning", "2025-01-10T10:00:00Z", "2025-01-10T11:00:00Z")
		env.now = time.Date(2025, time.January, 9, 10, 0, 0, 0, time.UTC)

		rec := env.do(t, http.MethodPost, "/api/v1/process-reminders", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		report := decode[sweepReportDTO](t, rec)
		if report.Due != 1 || report.Processed != 1 || report.EmailsSent != 2 {
			t.Fatalf("unexpected report %+v", report)
		}

		status := decode[sweeperStatusDTO](t, env.do(t, http.MethodGet, "/api/v1/reminders/status", nil))
		if status.Running || status.Schedule != "@every 5m" || status.LastRunAt == nil || status.LastReport == nil {
			t.Fatalf("unexpected status %+v", status)
		}
	})

	t.Run("sends a manual reminder", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)
		event := env.createEvent(t, "Planning", "2025-01-10T10:00:00Z", "2025-01-10T11:00:00Z")

		rec := env.do(t, http.MethodPost, "/api/v1/events/"+event.ID+"/send-reminder", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if resp := decode[sendReminderResponse](t, rec); resp.Notifications.Sent != 2 {
			t.Fatalf("unexpected tally %+v", resp.Notifications)
		}

		if rec = env.do(t, http.MethodPost, "/api/v1/events/missing/send-reminder", nil); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

type blockingSweeper struct{}

func (blockingSweeper) Sweep(context.Context) (application.SweepReport, error) {
	return application.SweepReport{}, application.ErrSweepInProgress
}

func (blockingSweeper) SendManualReminder(context.Context, string) (application.DispatchSummary, error) {
	return application.DispatchSummary{}, errors.New("boom")
}

func (blockingSweeper) Status() application.SweeperStatus {
	return application.SweeperStatus{Running: true}
}

func TestReminderHandlers_ErrorMapping(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{Reminders: NewReminderHandler(blockingSweeper{}, discardLogger()), Logger: discardLogger()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/process-reminders", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for overlapping sweep, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events/e-1/send-reminder", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unexpected error, got %d", rec.Code)
	}
	if resp := decode[errorResponse](t, rec); strings.Contains(resp.Message, "boom") {
		t.Fatalf("internal error details must not leak: %q", resp.Message)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is closed") }

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	t.Run("reports ok when the store answers", func(t *testing.T) {
		t.Parallel()
		env := newAPIEnv(t)
		rec := env.do(t, http.MethodGet, "/healthz", nil)
		if rec.Code != http.StatusOK || decode[healthResponse](t, rec).Status != "ok" {
			t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("reports unavailable when the store fails", func(t *testing.T) {
		t.Parallel()
		router := NewRouter(RouterConfig{Health: NewHealthHandler(failingPinger{}, discardLogger()), Logger: discardLogger()})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestRouterRendersUnknownRoutesAsJSON(t *testing.T) {
	t.Parallel()

	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if resp := decode[errorResponse](t, rec); resp.Message == "" {
		t.Fatalf("expected JSON error message, got %q", rec.Body.String())
	}
}
