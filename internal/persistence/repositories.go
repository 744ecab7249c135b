package persistence

import (
	"context"
	"time"
)

// EventFilter narrows event listings. WindowStart/WindowEnd select events whose
// range overlaps [WindowStart, WindowEnd); either bound may be nil.
type EventFilter struct {
	Statuses    []EventStatus
	Category    EventCategory
	WindowStart *time.Time
	WindowEnd   *time.Time
	Limit       int
}

// NotificationFilter narrows notification history listings.
type NotificationFilter struct {
	EventID string
	Limit   int
}

// EventRepository persists events. Results of ListEvents are ordered by start, then id.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	UpdateEvent(ctx context.Context, event Event) error
}

// AttendeeRepository persists attendees.
type AttendeeRepository interface {
	CreateAttendees(ctx context.Context, attendees []Attendee) error
	ListAttendees(ctx context.Context, eventID string) ([]Attendee, error)
	MarkAttendeesNotified(ctx context.Context, ids []string, at time.Time) error
}

// ReminderRepository persists reminders.
type ReminderRepository interface {
	CreateReminders(ctx context.Context, reminders []Reminder) error
	ListReminders(ctx context.Context, eventID string) ([]Reminder, error)
	// ListDueUnsentReminders returns reminders with sent=false and due_at <= now,
	// oldest first.
	ListDueUnsentReminders(ctx context.Context, now time.Time) ([]Reminder, error)
	// MarkReminderSent flips sent to true and reports whether this call made
	// the transition.
	MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error)
	DeletePendingReminders(ctx context.Context, eventID string) error
}

// NotificationLogRepository persists the per-recipient dispatch audit trail.
type NotificationLogRepository interface {
	RecordNotification(ctx context.Context, entry NotificationLog) error
	// ListNotifications returns entries newest first.
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]NotificationLog, error)
}

// RecipientRepository manages the internal recipient directory.
type RecipientRepository interface {
	CreateRecipient(ctx context.Context, recipient Recipient) error
	ListNotifiableRecipients(ctx context.Context) ([]Recipient, error)
}

// Repositories groups every repository exposed by a store.
type Repositories interface {
	EventRepository
	AttendeeRepository
	ReminderRepository
	NotificationLogRepository
	RecipientRepository
}

// TxFunc runs inside a store transaction against the transactional repositories.
type TxFunc func(ctx context.Context, tx Repositories) error

// Store is the persistence collaborator. WithinTx executes fn atomically and
// serialises it against other writers, which is what keeps conflict detection
// and the subsequent insert free of check-then-act races.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// HasStatus reports whether the filter admits the status.
func (f EventFilter) HasStatus(status EventStatus) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Admits reports whether event matches the filter.
func (f EventFilter) Admits(event Event) bool {
	if !f.HasStatus(event.Status) {
		return false
	}
	if f.Category != "" && event.Category != f.Category {
		return false
	}
	if f.WindowEnd != nil && !event.Start.Before(*f.WindowEnd) {
		return false
	}
	if f.WindowStart != nil && !f.WindowStart.Before(event.End) {
		return false
	}
	return true
}
