package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/event-booking/internal/notification"
	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/persistence/memory"
	"github.com/example/event-booking/internal/scheduler"
)

var baseTime = time.Date(2025, time.January, 9, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (s *sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

type stubTransport struct {
	mu      sync.Mutex
	failFor map[string]bool
	failAll bool
	onSend  func(msg notification.Message)
	sent    []notification.Message
}

func (s *stubTransport) Send(_ context.Context, msg notification.Message) (string, error) {
	if s.onSend != nil {
		s.onSend(msg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.failAll || s.failFor[msg.To] {
		return "", errors.New("smtp: mailbox unavailable")
	}
	return fmt.Sprintf("msg-%d", len(s.sent)), nil
}

func (s *stubTransport) Sent() []notification.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

type testEnv struct {
	store     *memory.Storage
	clock     *testClock
	transport *stubTransport
	booking   *BookingService
	sweeper   *ReminderSweeper
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.New())
}

func newTestEnvWithStore(t *testing.T, store *memory.Storage) *testEnv {
	t.Helper()

	clock := newTestClock()
	ids := &sequence{prefix: "id"}
	transport := &stubTransport{}
	logger := discardLogger()

	dispatcher := notification.NewDispatcher(transport, notification.Options{
		MinSpacing:  time.Millisecond,
		SendTimeout: time.Second,
		Audit:       store,
		IDGenerator: ids.Next,
		Now:         clock.Now,
		Sleep:       func(context.Context, time.Duration) error { return nil },
		Logger:      logger,
	})
	planner := scheduler.NewReminderPlanner(nil, clock.Now)

	return &testEnv{
		store:     store,
		clock:     clock,
		transport: transport,
		booking: NewBookingService(BookingServiceConfig{
			Store:           store,
			Dispatcher:      dispatcher,
			Planner:         planner,
			Organizer:       notification.Organizer{Email: "scheduler@example.com", Name: "Scheduler"},
			AvailabilityTTL: time.Minute,
			IDGenerator:     ids.Next,
			Now:             clock.Now,
			Logger:          logger,
		}),
		sweeper: NewReminderSweeper(ReminderSweeperConfig{
			Store:       store,
			Dispatcher:  dispatcher,
			PrimaryKind: planner.PrimaryKind(),
			Deadline:    4 * time.Minute,
			Schedule:    "@every 5m",
			Now:         clock.Now,
			Logger:      logger,
		}),
	}
}

func (e *testEnv) addRecipient(t *testing.T, email, name string) persistence.Recipient {
	t.Helper()
	recipient, err := e.booking.CreateRecipient(context.Background(), RecipientInput{Email: email, DisplayName: name})
	if err != nil {
		t.Fatalf("CreateRecipient returned error: %v", err)
	}
	return recipient
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.January, day, hour, minute, 0, 0, time.UTC)
}

func eventInput(title string, start, end time.Time) CreateEventInput {
	return CreateEventInput{
		Title:     title,
		Category:  persistence.EventCategoryMeeting,
		Start:     start,
		End:       end,
		CreatedBy: "admin-1",
	}
}

func (e *testEnv) mustCreate(t *testing.T, input CreateEventInput) CreateEventResult {
	t.Helper()
	result, err := e.booking.CreateEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}
	return result
}

func (e *testEnv) reminders(t *testing.T, eventID string) map[string]persistence.Reminder {
	t.Helper()
	list, err := e.store.ListReminders(context.Background(), eventID)
	if err != nil {
		t.Fatalf("ListReminders returned error: %v", err)
	}
	byKind := make(map[string]persistence.Reminder, len(list))
	for _, r := range list {
		byKind[r.Kind] = r
	}
	return byKind
}
