// Package storetest holds the behavioural contract every persistence.Store
// implementation is tested against.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/event-booking/internal/persistence"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) persistence.Store

var base = time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

// Event builds a scheduled event starting offset after the contract base time.
func Event(id string, offset, length time.Duration) persistence.Event {
	start := base.Add(offset)
	return persistence.Event{
		ID:        id,
		Title:     "Event " + id,
		Category:  persistence.EventCategoryMeeting,
		Start:     start,
		End:       start.Add(length),
		Status:    persistence.EventStatusScheduled,
		CreatedBy: "tester",
		CreatedAt: base.Add(-72 * time.Hour),
		UpdatedAt: base.Add(-72 * time.Hour),
	}
}

// Run executes the contract against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("events round trip and list in start order", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		later := Event("evt-b", 2*time.Hour, time.Hour)
		earlier := Event("evt-a", 0, time.Hour)
		earlier.Description = "quarterly planning"
		earlier.Location = "Room 1"
		earlier.MeetingLink = "https://meet.example.com/a"
		for _, e := range []persistence.Event{later, earlier} {
			if err := store.CreateEvent(ctx, e); err != nil {
				t.Fatalf("CreateEvent(%s) returned error: %v", e.ID, err)
			}
		}

		got, err := store.GetEvent(ctx, "evt-a")
		if err != nil {
			t.Fatalf("GetEvent returned error: %v", err)
		}
		if got.Title != earlier.Title || got.MeetingLink != earlier.MeetingLink || got.Location != earlier.Location {
			t.Fatalf("unexpected event %+v", got)
		}
		if !got.Start.Equal(earlier.Start) || !got.End.Equal(earlier.End) {
			t.Fatalf("times did not round trip: %s-%s", got.Start, got.End)
		}
		if got.ReminderSent || got.ReminderSentAt != nil {
			t.Fatalf("expected reminder flags to be unset")
		}

		listed, err := store.ListEvents(ctx, persistence.EventFilter{})
		if err != nil {
			t.Fatalf("ListEvents returned error: %v", err)
		}
		if len(listed) != 2 || listed[0].ID != "evt-a" || listed[1].ID != "evt-b" {
			t.Fatalf("unexpected list order %+v", ids(listed))
		}

		if _, err := store.GetEvent(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("event filters by status, category and window", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		cancelled := Event("evt-cancelled", 0, time.Hour)
		cancelled.Status = persistence.EventStatusCancelled
		org := Event("evt-org", 3*time.Hour, time.Hour)
		org.Category = persistence.EventCategoryOrganizationEvent
		for _, e := range []persistence.Event{Event("evt-1", 0, time.Hour), cancelled, org} {
			if err := store.CreateEvent(ctx, e); err != nil {
				t.Fatalf("CreateEvent returned error: %v", err)
			}
		}

		scheduled, err := store.ListEvents(ctx, persistence.EventFilter{Statuses: []persistence.EventStatus{persistence.EventStatusScheduled}})
		if err != nil {
			t.Fatalf("ListEvents returned error: %v", err)
		}
		if len(scheduled) != 2 {
			t.Fatalf("expected 2 scheduled events, got %v", ids(scheduled))
		}

		meetings, err := store.ListEvents(ctx, persistence.EventFilter{Category: persistence.EventCategoryOrganizationEvent})
		if err != nil {
			t.Fatalf("ListEvents returned error: %v", err)
		}
		if len(meetings) != 1 || meetings[0].ID != "evt-org" {
			t.Fatalf("unexpected category filter result %v", ids(meetings))
		}

		windowStart := base.Add(time.Hour)
		windowEnd := base.Add(3*time.Hour + time.Minute)
		windowed, err := store.ListEvents(ctx, persistence.EventFilter{WindowStart: &windowStart, WindowEnd: &windowEnd})
		if err != nil {
			t.Fatalf("ListEvents returned error: %v", err)
		}
		if len(windowed) != 1 || windowed[0].ID != "evt-org" {
			t.Fatalf("window must exclude events ending at its start, got %v", ids(windowed))
		}

		limited, err := store.ListEvents(ctx, persistence.EventFilter{Limit: 1})
		if err != nil {
			t.Fatalf("ListEvents returned error: %v", err)
		}
		if len(limited) != 1 {
			t.Fatalf("expected limit to apply, got %v", ids(limited))
		}
	})

	t.Run("update event persists status and reminder flags", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		event := Event("evt-1", 0, time.Hour)
		if err := store.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent returned error: %v", err)
		}

		sentAt := base.Add(-24 * time.Hour)
		event.Status = persistence.EventStatusCancelled
		event.ReminderSent = true
		event.ReminderSentAt = &sentAt
		event.UpdatedAt = sentAt
		if err := store.UpdateEvent(ctx, event); err != nil {
			t.Fatalf("UpdateEvent returned error: %v", err)
		}

		got, err := store.GetEvent(ctx, "evt-1")
		if err != nil {
			t.Fatalf("GetEvent returned error: %v", err)
		}
		if got.Status != persistence.EventStatusCancelled || !got.ReminderSent || got.ReminderSentAt == nil || !got.ReminderSentAt.Equal(sentAt) {
			t.Fatalf("update not persisted: %+v", got)
		}

		if err := store.UpdateEvent(ctx, Event("missing", 0, time.Hour)); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("attendees are stored and marked notified", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		if err := store.CreateEvent(ctx, Event("evt-1", 0, time.Hour)); err != nil {
			t.Fatalf("CreateEvent returned error: %v", err)
		}
		recipientID := "rcp-1"
		if err := store.CreateRecipient(ctx, persistence.Recipient{ID: recipientID, Email: "admin@example.com", DisplayName: "Admin", Active: true, EmailNotifications: true, CreatedAt: base, UpdatedAt: base}); err != nil {
			t.Fatalf("CreateRecipient returned error: %v", err)
		}

		attendees := []persistence.Attendee{
			{ID: "att-1", EventID: "evt-1", RecipientID: &recipientID, Email: "admin@example.com", DisplayName: "Admin", CreatedAt: base},
			{ID: "att-2", EventID: "evt-1", Email: "guest@example.org", DisplayName: "Guest", CreatedAt: base.Add(time.Second)},
		}
		if err := store.CreateAttendees(ctx, attendees); err != nil {
			t.Fatalf("CreateAttendees returned error: %v", err)
		}
		if err := store.MarkAttendeesNotified(ctx, []string{"att-2"}, base); err != nil {
			t.Fatalf("MarkAttendeesNotified returned error: %v", err)
		}

		got, err := store.ListAttendees(ctx, "evt-1")
		if err != nil {
			t.Fatalf("ListAttendees returned error: %v", err)
		}
		if len(got) != 2 || got[0].ID != "att-1" || got[1].ID != "att-2" {
			t.Fatalf("unexpected attendees %+v", got)
		}
		if got[0].RecipientID == nil || *got[0].RecipientID != recipientID {
			t.Fatalf("expected recipient reference on internal attendee")
		}
		if got[0].NotificationSent || !got[1].NotificationSent || got[1].NotifiedAt == nil {
			t.Fatalf("unexpected notification flags %+v", got)
		}
	})

	t.Run("due reminders are listed and marked sent once", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		if err := store.CreateEvent(ctx, Event("evt-1", 0, time.Hour)); err != nil {
			t.Fatalf("CreateEvent returned error: %v", err)
		}
		reminders := []persistence.Reminder{
			{ID: "rem-24h", EventID: "evt-1", Kind: "24_hours", DueAt: base.Add(-24 * time.Hour), CreatedAt: base.Add(-48 * time.Hour)},
			{ID: "rem-1h", EventID: "evt-1", Kind: "1_hour", DueAt: base.Add(-time.Hour), CreatedAt: base.Add(-48 * time.Hour)},
		}
		if err := store.CreateReminders(ctx, reminders); err != nil {
			t.Fatalf("CreateReminders returned error: %v", err)
		}

		due, err := store.ListDueUnsentReminders(ctx, base.Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("ListDueUnsentReminders returned error: %v", err)
		}
		if len(due) != 1 || due[0].ID != "rem-24h" {
			t.Fatalf("expected only the 24h reminder to be due, got %+v", due)
		}

		first, err := store.MarkReminderSent(ctx, "rem-24h", base.Add(-24*time.Hour))
		if err != nil || !first {
			t.Fatalf("expected first MarkReminderSent to transition, got %v %v", first, err)
		}
		second, err := store.MarkReminderSent(ctx, "rem-24h", base.Add(-23*time.Hour))
		if err != nil || second {
			t.Fatalf("expected second MarkReminderSent to be a no-op, got %v %v", second, err)
		}

		due, err = store.ListDueUnsentReminders(ctx, base)
		if err != nil {
			t.Fatalf("ListDueUnsentReminders returned error: %v", err)
		}
		if len(due) != 1 || due[0].ID != "rem-1h" {
			t.Fatalf("expected only the 1h reminder to remain due, got %+v", due)
		}

		if err := store.DeletePendingReminders(ctx, "evt-1"); err != nil {
			t.Fatalf("DeletePendingReminders returned error: %v", err)
		}
		all, err := store.ListReminders(ctx, "evt-1")
		if err != nil {
			t.Fatalf("ListReminders returned error: %v", err)
		}
		if len(all) != 1 || all[0].ID != "rem-24h" || !all[0].Sent || all[0].SentAt == nil {
			t.Fatalf("expected only the sent reminder to survive, got %+v", all)
		}

		if _, err := store.MarkReminderSent(ctx, "missing", base); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("notification history is newest first and limited", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		for i := 0; i < 3; i++ {
			entry := persistence.NotificationLog{
				ID:             fmt.Sprintf("log-%d", i),
				EventID:        "evt-1",
				Kind:           persistence.NotificationKindInvitation,
				RecipientEmail: fmt.Sprintf("user%d@example.com", i),
				Subject:        "New Meeting/Event: Sync",
				Status:         persistence.NotificationStatusSent,
				MessageID:      fmt.Sprintf("msg-%d", i),
				CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			}
			if err := store.RecordNotification(ctx, entry); err != nil {
				t.Fatalf("RecordNotification returned error: %v", err)
			}
		}
		if err := store.RecordNotification(ctx, persistence.NotificationLog{
			ID: "log-other", EventID: "evt-2", Kind: persistence.NotificationKindReminder,
			RecipientEmail: "x@example.com", Status: persistence.NotificationStatusFailed, Error: "invalid format",
			CreatedAt: base.Add(time.Hour),
		}); err != nil {
			t.Fatalf("RecordNotification returned error: %v", err)
		}

		got, err := store.ListNotifications(ctx, persistence.NotificationFilter{EventID: "evt-1", Limit: 2})
		if err != nil {
			t.Fatalf("ListNotifications returned error: %v", err)
		}
		if len(got) != 2 || got[0].ID != "log-2" || got[1].ID != "log-1" {
			t.Fatalf("unexpected history %+v", got)
		}

		all, err := store.ListNotifications(ctx, persistence.NotificationFilter{})
		if err != nil {
			t.Fatalf("ListNotifications returned error: %v", err)
		}
		if len(all) != 4 || all[0].ID != "log-other" || all[0].Error != "invalid format" {
			t.Fatalf("unexpected full history %+v", all)
		}
	})

	t.Run("recipient directory filters inactive and opted out entries", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		recipients := []persistence.Recipient{
			{ID: "r1", Email: "a@example.com", DisplayName: "A", Active: true, EmailNotifications: true, CreatedAt: base},
			{ID: "r2", Email: "b@example.com", DisplayName: "B", Active: false, EmailNotifications: true, CreatedAt: base},
			{ID: "r3", Email: "c@example.com", DisplayName: "C", Active: true, EmailNotifications: false, CreatedAt: base},
		}
		for _, r := range recipients {
			r.UpdatedAt = r.CreatedAt
			if err := store.CreateRecipient(ctx, r); err != nil {
				t.Fatalf("CreateRecipient returned error: %v", err)
			}
		}
		if err := store.CreateRecipient(ctx, persistence.Recipient{ID: "r4", Email: "a@example.com", CreatedAt: base, UpdatedAt: base}); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate for repeated email, got %v", err)
		}

		got, err := store.ListNotifiableRecipients(ctx)
		if err != nil {
			t.Fatalf("ListNotifiableRecipients returned error: %v", err)
		}
		if len(got) != 1 || got[0].ID != "r1" {
			t.Fatalf("unexpected recipients %+v", got)
		}
	})

	t.Run("failed transaction rolls back every write", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		boom := errors.New("boom")
		err := store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
			if err := tx.CreateEvent(ctx, Event("evt-1", 0, time.Hour)); err != nil {
				return err
			}
			if err := tx.CreateReminders(ctx, []persistence.Reminder{{ID: "rem-1", EventID: "evt-1", Kind: "1_hour", DueAt: base.Add(-time.Hour), CreatedAt: base}}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		if _, err := store.GetEvent(ctx, "evt-1"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected event to be rolled back, got %v", err)
		}
		reminders, err := store.ListReminders(ctx, "evt-1")
		if err != nil {
			t.Fatalf("ListReminders returned error: %v", err)
		}
		if len(reminders) != 0 {
			t.Fatalf("expected reminders to be rolled back, got %+v", reminders)
		}
	})

	t.Run("transactions serialise check then insert", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
					existing, err := tx.ListEvents(ctx, persistence.EventFilter{Statuses: []persistence.EventStatus{persistence.EventStatusScheduled}})
					if err != nil {
						return err
					}
					if len(existing) > 0 {
						return nil
					}
					return tx.CreateEvent(ctx, Event(fmt.Sprintf("evt-%d", i), 0, time.Hour))
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil && !errors.Is(err, persistence.ErrOverlap) && !errors.Is(err, persistence.ErrConflictingWrite) {
				t.Fatalf("WithinTx returned error: %v", err)
			}
		}

		events, err := store.ListEvents(ctx, persistence.EventFilter{})
		if err != nil {
			t.Fatalf("ListEvents returned error: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("expected exactly one event after concurrent check-then-insert, got %v", ids(events))
		}
	})
}

func ids(events []persistence.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}
