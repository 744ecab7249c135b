package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/event-booking/internal/application"
	"github.com/example/event-booking/internal/persistence"
)

var (
	eventCounter     uint64
	recipientCounter uint64
)

// referenceTime is a Thursday morning, so "this week" and "tomorrow" are
// both meaningful relative to it.
var referenceTime = time.Date(2025, time.January, 9, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Event fixtures ----------------------------

// EventFixture is a deterministic event that can be persisted directly or
// turned into booking input.
type EventFixture struct {
	ID          string
	Title       string
	Category    persistence.EventCategory
	Description string
	Location    string
	MeetingLink string
	Start       time.Time
	End         time.Time
	Status      persistence.EventStatus
	CreatedBy   string
	CreatedAt   time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a one hour meeting starting the day after
// ReferenceTime, shifted by one hour per fixture so fixtures never overlap.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	start := referenceTime.Add(26*time.Hour + time.Duration(idx)*time.Hour)
	fixture := EventFixture{
		ID:        fmt.Sprintf("event-%03d", idx),
		Title:     fmt.Sprintf("Event %03d", idx),
		Category:  persistence.EventCategoryMeeting,
		Location:  "Room A",
		Start:     start,
		End:       start.Add(time.Hour),
		Status:    persistence.EventStatusScheduled,
		CreatedBy: "admin-001",
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventTitle overrides the generated title.
func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) {
		f.Title = title
	}
}

// WithEventCategory overrides the category.
func WithEventCategory(category persistence.EventCategory) EventOption {
	return func(f *EventFixture) {
		f.Category = category
	}
}

// WithEventRange sets start and end.
func WithEventRange(start, end time.Time) EventOption {
	return func(f *EventFixture) {
		f.Start = start
		f.End = end
	}
}

// WithEventMeetingLink sets the online meeting link.
func WithEventMeetingLink(link string) EventOption {
	return func(f *EventFixture) {
		f.MeetingLink = link
	}
}

// Cancelled marks the fixture as cancelled.
func Cancelled() EventOption {
	return func(f *EventFixture) {
		f.Status = persistence.EventStatusCancelled
	}
}

// Persistence returns the fixture as a persistence.Event.
func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:          f.ID,
		Title:       f.Title,
		Category:    f.Category,
		Description: f.Description,
		Location:    f.Location,
		MeetingLink: f.MeetingLink,
		Start:       f.Start,
		End:         f.End,
		Status:      f.Status,
		CreatedBy:   f.CreatedBy,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.CreatedAt,
	}
}

// Input returns the fixture as booking input.
func (f EventFixture) Input(external ...application.ExternalAttendee) application.CreateEventInput {
	return application.CreateEventInput{
		Title:             f.Title,
		Category:          f.Category,
		Description:       f.Description,
		Location:          f.Location,
		MeetingLink:       f.MeetingLink,
		Start:             f.Start,
		End:               f.End,
		CreatedBy:         f.CreatedBy,
		ExternalAttendees: external,
	}
}

// --------------------------- Recipient fixtures --------------------------

// RecipientFixture is a deterministic directory entry.
type RecipientFixture struct {
	ID                 string
	Email              string
	DisplayName        string
	Active             bool
	EmailNotifications bool
	CreatedAt          time.Time
}

// RecipientOption configures the generated recipient fixture.
type RecipientOption func(*RecipientFixture)

// NewRecipientFixture returns an active recipient who receives email.
func NewRecipientFixture(opts ...RecipientOption) RecipientFixture {
	idx := atomic.AddUint64(&recipientCounter, 1)
	id := fmt.Sprintf("recipient-%03d", idx)
	fixture := RecipientFixture{
		ID:                 id,
		Email:              fmt.Sprintf("%s@example.com", id),
		DisplayName:        fmt.Sprintf("Recipient %03d", idx),
		Active:             true,
		EmailNotifications: true,
		CreatedAt:          referenceTime.Add(-time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRecipientEmail overrides the generated address.
func WithRecipientEmail(email string) RecipientOption {
	return func(f *RecipientFixture) {
		f.Email = email
	}
}

// WithRecipientName overrides the generated display name.
func WithRecipientName(name string) RecipientOption {
	return func(f *RecipientFixture) {
		f.DisplayName = name
	}
}

// Inactive marks the recipient as deactivated.
func Inactive() RecipientOption {
	return func(f *RecipientFixture) {
		f.Active = false
	}
}

// OptedOut disables email notifications for the recipient.
func OptedOut() RecipientOption {
	return func(f *RecipientFixture) {
		f.EmailNotifications = false
	}
}

// Persistence returns the fixture as a persistence.Recipient.
func (f RecipientFixture) Persistence() persistence.Recipient {
	return persistence.Recipient{
		ID:                 f.ID,
		Email:              f.Email,
		DisplayName:        f.DisplayName,
		Active:             f.Active,
		EmailNotifications: f.EmailNotifications,
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.CreatedAt,
	}
}
