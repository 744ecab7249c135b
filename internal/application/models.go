package application

import (
	"time"

	"github.com/example/event-booking/internal/notification"
	"github.com/example/event-booking/internal/persistence"
)

// ExternalAttendee is an attendee outside the recipient directory.
type ExternalAttendee struct {
	Email       string
	DisplayName string
}

// CreateEventInput captures caller provided event fields.
type CreateEventInput struct {
	Title       string
	Category    persistence.EventCategory
	Description string
	Location    string
	MeetingLink string
	Start       time.Time
	End         time.Time
	CreatedBy   string
	// ExternalAttendees are invited in addition to every notifiable internal recipient.
	ExternalAttendees []ExternalAttendee
}

// EventPatch lists the fields UpdateEvent may change. Nil fields are left untouched.
type EventPatch struct {
	Title       *string
	Category    *persistence.EventCategory
	Description *string
	Location    *string
	MeetingLink *string
	Start       *time.Time
	End         *time.Time
}

// DispatchSummary is the caller facing tally of a notification dispatch.
type DispatchSummary struct {
	Sent   int
	Failed int
	Total  int
}

func summarize(result notification.Result) DispatchSummary {
	return DispatchSummary{Sent: result.SuccessCount, Failed: result.FailureCount, Total: result.TotalCount}
}

// CreateEventResult is returned by CreateEvent. Dispatch reports the invitation
// outcome; a booking succeeds even when every send failed.
type CreateEventResult struct {
	Event             persistence.Event
	Attendees         []persistence.Attendee
	Reminders         []persistence.Reminder
	AttendeesNotified int
	Dispatch          DispatchSummary
}

// EventDetails is an event together with its attendees and reminders.
type EventDetails struct {
	Event     persistence.Event
	Attendees []persistence.Attendee
	Reminders []persistence.Reminder
}

// AvailabilityQuery asks whether a range is free. ExcludeEventID lets an
// event being edited ignore itself.
type AvailabilityQuery struct {
	Start          time.Time
	End            time.Time
	ExcludeEventID string
}

// AvailabilityResult answers an AvailabilityQuery.
type AvailabilityResult struct {
	Available bool
	Conflicts []persistence.Event
}

// ListEventsParams narrows event listings. An empty Status lists scheduled
// events only; "all" lists every status.
type ListEventsParams struct {
	From     *time.Time
	To       *time.Time
	Category persistence.EventCategory
	Status   string
	Limit    int
}

// ListEventsStatusAll selects events of every status.
const ListEventsStatusAll = "all"

// Stats summarises the calendar for dashboards.
type Stats struct {
	TotalScheduled  int
	ThisWeek        int
	Meetings        int
	NeedingReminder int
	Upcoming        []persistence.Event
}

// RecipientInput captures a new internal recipient.
type RecipientInput struct {
	Email              string
	DisplayName        string
	EmailNotifications *bool
}
