package persistence

import "time"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventStatusScheduled EventStatus = "scheduled"
	EventStatusCancelled EventStatus = "cancelled"
)

// EventCategory classifies an event.
type EventCategory string

const (
	EventCategoryMeeting           EventCategory = "meeting"
	EventCategoryOrganizationEvent EventCategory = "organization_event"
	EventCategoryReminder          EventCategory = "reminder"
)

// Valid reports whether the category is one of the known values.
func (c EventCategory) Valid() bool {
	switch c {
	case EventCategoryMeeting, EventCategoryOrganizationEvent, EventCategoryReminder:
		return true
	}
	return false
}

// Event is a booked calendar entry. Cancelled events are retained.
type Event struct {
	ID             string
	Title          string
	Category       EventCategory
	Description    string
	Location       string
	MeetingLink    string
	Start          time.Time
	End            time.Time
	Status         EventStatus
	ReminderSent   bool
	ReminderSentAt *time.Time
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Attendee is a notification recipient attached to an event. RecipientID is
// set for internal recipients and nil for external addresses. Email and
// DisplayName are captured when the attendee is created.
type Attendee struct {
	ID               string
	EventID          string
	RecipientID      *string
	Email            string
	DisplayName      string
	NotificationSent bool
	NotifiedAt       *time.Time
	CreatedAt        time.Time
}

// Recipient is an internal member of the organisation directory.
type Recipient struct {
	ID                 string
	Email              string
	DisplayName        string
	Active             bool
	EmailNotifications bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Reminder is a planned notification for an event.
type Reminder struct {
	ID        string
	EventID   string
	Kind      string
	DueAt     time.Time
	Sent      bool
	SentAt    *time.Time
	CreatedAt time.Time
}

// NotificationKind distinguishes invitation and reminder mail.
type NotificationKind string

const (
	NotificationKindInvitation NotificationKind = "invitation"
	NotificationKindReminder   NotificationKind = "reminder"
)

// NotificationStatus records the outcome of a single send attempt.
type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "sent"
	NotificationStatusFailed NotificationStatus = "failed"
)

// NotificationLog is one audit entry per recipient per dispatch.
type NotificationLog struct {
	ID             string
	EventID        string
	Kind           NotificationKind
	RecipientEmail string
	RecipientName  string
	Subject        string
	Status         NotificationStatus
	MessageID      string
	Error          string
	CreatedAt      time.Time
}
