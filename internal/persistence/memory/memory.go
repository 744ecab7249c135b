// Package memory provides an in-process implementation of persistence.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/event-booking/internal/persistence"
)

// Storage keeps all records in maps guarded by a reader/writer lock. Writers,
// including whole transactions, are serialised by a separate writer lock. A
// transaction works on a private copy of the state that replaces the shared
// state on commit, so readers never observe uncommitted writes.
type Storage struct {
	core *core
	// staged is the transaction's working copy; nil outside a transaction.
	staged *state
}

type core struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	data    state
}

type state struct {
	events        map[string]persistence.Event
	attendees     map[string]persistence.Attendee
	reminders     map[string]persistence.Reminder
	recipients    map[string]persistence.Recipient
	notifications []persistence.NotificationLog
}

var _ persistence.Store = (*Storage)(nil)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{core: &core{data: newState()}}
}

func newState() state {
	return state{
		events:     make(map[string]persistence.Event),
		attendees:  make(map[string]persistence.Attendee),
		reminders:  make(map[string]persistence.Reminder),
		recipients: make(map[string]persistence.Recipient),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// WithinTx runs fn while holding the writer lock against a copy of the
// state. The copy is published only when fn returns nil.
func (s *Storage) WithinTx(ctx context.Context, fn persistence.TxFunc) (err error) {
	if s.staged != nil {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.core.writeMu.Lock()
	defer s.core.writeMu.Unlock()

	s.core.mu.RLock()
	staged := s.core.data.clone()
	s.core.mu.RUnlock()

	if err = fn(ctx, &Storage{core: s.core, staged: &staged}); err != nil {
		return err
	}

	s.core.mu.Lock()
	s.core.data = staged
	s.core.mu.Unlock()
	return nil
}

func (s *Storage) write(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.staged != nil {
		return fn(s.staged)
	}
	s.core.writeMu.Lock()
	defer s.core.writeMu.Unlock()
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	return fn(&s.core.data)
}

func (s *Storage) read(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.staged != nil {
		return fn(s.staged)
	}
	s.core.mu.RLock()
	defer s.core.mu.RUnlock()
	return fn(&s.core.data)
}

// --- EventRepository implementation ---

// CreateEvent stores a new event.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.events[event.ID]; ok {
			return fmt.Errorf("memory: event %s: %w", event.ID, persistence.ErrDuplicate)
		}
		st.events[event.ID] = cloneEvent(event)
		return nil
	})
}

// GetEvent retrieves an event by ID.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	var event persistence.Event
	err := s.read(ctx, func(st *state) error {
		stored, ok := st.events[id]
		if !ok {
			return persistence.ErrNotFound
		}
		event = cloneEvent(stored)
		return nil
	})
	return event, err
}

// ListEvents returns events admitted by filter ordered by start, then id.
func (s *Storage) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	var events []persistence.Event
	err := s.read(ctx, func(st *state) error {
		for _, event := range st.events {
			if filter.Admits(event) {
				events = append(events, cloneEvent(event))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].ID < events[j].ID
		}
		return events[i].Start.Before(events[j].Start)
	})
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

// UpdateEvent replaces an existing event.
func (s *Storage) UpdateEvent(ctx context.Context, event persistence.Event) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.events[event.ID]; !ok {
			return persistence.ErrNotFound
		}
		st.events[event.ID] = cloneEvent(event)
		return nil
	})
}

// --- AttendeeRepository implementation ---

// CreateAttendees stores attendees for existing events.
func (s *Storage) CreateAttendees(ctx context.Context, attendees []persistence.Attendee) error {
	return s.write(ctx, func(st *state) error {
		for _, attendee := range attendees {
			if _, ok := st.events[attendee.EventID]; !ok {
				return fmt.Errorf("memory: attendee %s references unknown event %s: %w", attendee.ID, attendee.EventID, persistence.ErrNotFound)
			}
			if _, ok := st.attendees[attendee.ID]; ok {
				return fmt.Errorf("memory: attendee %s: %w", attendee.ID, persistence.ErrDuplicate)
			}
		}
		for _, attendee := range attendees {
			st.attendees[attendee.ID] = cloneAttendee(attendee)
		}
		return nil
	})
}

// ListAttendees returns attendees of an event ordered by creation.
func (s *Storage) ListAttendees(ctx context.Context, eventID string) ([]persistence.Attendee, error) {
	var attendees []persistence.Attendee
	err := s.read(ctx, func(st *state) error {
		for _, attendee := range st.attendees {
			if attendee.EventID == eventID {
				attendees = append(attendees, cloneAttendee(attendee))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(attendees, func(i, j int) bool {
		if attendees[i].CreatedAt.Equal(attendees[j].CreatedAt) {
			return attendees[i].ID < attendees[j].ID
		}
		return attendees[i].CreatedAt.Before(attendees[j].CreatedAt)
	})
	return attendees, nil
}

// MarkAttendeesNotified sets notification_sent on the given attendees.
func (s *Storage) MarkAttendeesNotified(ctx context.Context, ids []string, at time.Time) error {
	return s.write(ctx, func(st *state) error {
		for _, id := range ids {
			attendee, ok := st.attendees[id]
			if !ok {
				continue
			}
			attendee.NotificationSent = true
			attendee.NotifiedAt = timePtr(at)
			st.attendees[id] = attendee
		}
		return nil
	})
}

// --- ReminderRepository implementation ---

// CreateReminders stores reminders for existing events.
func (s *Storage) CreateReminders(ctx context.Context, reminders []persistence.Reminder) error {
	return s.write(ctx, func(st *state) error {
		for _, reminder := range reminders {
			if _, ok := st.events[reminder.EventID]; !ok {
				return fmt.Errorf("memory: reminder %s references unknown event %s: %w", reminder.ID, reminder.EventID, persistence.ErrNotFound)
			}
			if _, ok := st.reminders[reminder.ID]; ok {
				return fmt.Errorf("memory: reminder %s: %w", reminder.ID, persistence.ErrDuplicate)
			}
		}
		for _, reminder := range reminders {
			st.reminders[reminder.ID] = cloneReminder(reminder)
		}
		return nil
	})
}

// ListReminders returns reminders of an event ordered by due time.
func (s *Storage) ListReminders(ctx context.Context, eventID string) ([]persistence.Reminder, error) {
	return s.collectReminders(ctx, func(r persistence.Reminder) bool { return r.EventID == eventID })
}

// ListDueUnsentReminders returns unsent reminders due at or before now.
func (s *Storage) ListDueUnsentReminders(ctx context.Context, now time.Time) ([]persistence.Reminder, error) {
	return s.collectReminders(ctx, func(r persistence.Reminder) bool { return !r.Sent && !r.DueAt.After(now) })
}

func (s *Storage) collectReminders(ctx context.Context, keep func(persistence.Reminder) bool) ([]persistence.Reminder, error) {
	var reminders []persistence.Reminder
	err := s.read(ctx, func(st *state) error {
		for _, reminder := range st.reminders {
			if keep(reminder) {
				reminders = append(reminders, cloneReminder(reminder))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(reminders, func(i, j int) bool {
		if reminders[i].DueAt.Equal(reminders[j].DueAt) {
			return reminders[i].ID < reminders[j].ID
		}
		return reminders[i].DueAt.Before(reminders[j].DueAt)
	})
	return reminders, nil
}

// MarkReminderSent transitions a reminder to sent once.
func (s *Storage) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	var transitioned bool
	err := s.write(ctx, func(st *state) error {
		reminder, ok := st.reminders[id]
		if !ok {
			return persistence.ErrNotFound
		}
		if reminder.Sent {
			return nil
		}
		reminder.Sent = true
		reminder.SentAt = timePtr(at)
		st.reminders[id] = reminder
		transitioned = true
		return nil
	})
	return transitioned, err
}

// DeletePendingReminders removes the unsent reminders of an event.
func (s *Storage) DeletePendingReminders(ctx context.Context, eventID string) error {
	return s.write(ctx, func(st *state) error {
		for id, reminder := range st.reminders {
			if reminder.EventID == eventID && !reminder.Sent {
				delete(st.reminders, id)
			}
		}
		return nil
	})
}

// --- NotificationLogRepository implementation ---

// RecordNotification appends an audit entry.
func (s *Storage) RecordNotification(ctx context.Context, entry persistence.NotificationLog) error {
	return s.write(ctx, func(st *state) error {
		st.notifications = append(st.notifications, entry)
		return nil
	})
}

// ListNotifications returns audit entries newest first.
func (s *Storage) ListNotifications(ctx context.Context, filter persistence.NotificationFilter) ([]persistence.NotificationLog, error) {
	var entries []persistence.NotificationLog
	err := s.read(ctx, func(st *state) error {
		for i := len(st.notifications) - 1; i >= 0; i-- {
			entry := st.notifications[i]
			if filter.EventID != "" && entry.EventID != filter.EventID {
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

// --- RecipientRepository implementation ---

// CreateRecipient stores a directory entry. Emails are unique case-insensitively.
func (s *Storage) CreateRecipient(ctx context.Context, recipient persistence.Recipient) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.recipients[recipient.ID]; ok {
			return fmt.Errorf("memory: recipient %s: %w", recipient.ID, persistence.ErrDuplicate)
		}
		for _, existing := range st.recipients {
			if strings.EqualFold(existing.Email, recipient.Email) {
				return fmt.Errorf("memory: recipient email %s: %w", recipient.Email, persistence.ErrDuplicate)
			}
		}
		st.recipients[recipient.ID] = recipient
		return nil
	})
}

// ListNotifiableRecipients returns active recipients with email notifications enabled.
func (s *Storage) ListNotifiableRecipients(ctx context.Context) ([]persistence.Recipient, error) {
	var recipients []persistence.Recipient
	err := s.read(ctx, func(st *state) error {
		for _, recipient := range st.recipients {
			if recipient.Active && recipient.EmailNotifications {
				recipients = append(recipients, recipient)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recipients, func(i, j int) bool {
		if recipients[i].CreatedAt.Equal(recipients[j].CreatedAt) {
			return recipients[i].ID < recipients[j].ID
		}
		return recipients[i].CreatedAt.Before(recipients[j].CreatedAt)
	})
	return recipients, nil
}

func (st state) clone() state {
	cloned := newState()
	for id, event := range st.events {
		cloned.events[id] = cloneEvent(event)
	}
	for id, attendee := range st.attendees {
		cloned.attendees[id] = cloneAttendee(attendee)
	}
	for id, reminder := range st.reminders {
		cloned.reminders[id] = cloneReminder(reminder)
	}
	for id, recipient := range st.recipients {
		cloned.recipients[id] = recipient
	}
	cloned.notifications = append([]persistence.NotificationLog(nil), st.notifications...)
	return cloned
}

func cloneEvent(event persistence.Event) persistence.Event {
	event.ReminderSentAt = cloneTimePtr(event.ReminderSentAt)
	return event
}

func cloneAttendee(attendee persistence.Attendee) persistence.Attendee {
	if attendee.RecipientID != nil {
		id := *attendee.RecipientID
		attendee.RecipientID = &id
	}
	attendee.NotifiedAt = cloneTimePtr(attendee.NotifiedAt)
	return attendee
}

func cloneReminder(reminder persistence.Reminder) persistence.Reminder {
	reminder.SentAt = cloneTimePtr(reminder.SentAt)
	return reminder
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
