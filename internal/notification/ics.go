package notification

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/gosimple/slug"

	"github.com/example/event-booking/internal/persistence"
)

const (
	icsContentType = "text/calendar; method=REQUEST; charset=UTF-8"
	icsProductID   = "-//event-booking//scheduler//EN"
)

// Organizer identifies the sender of calendar invitations.
type Organizer struct {
	Email string
	Name  string
}

// BuildInvite renders event as an iCalendar REQUEST addressed to recipients.
// The attachment filename is derived from the event title.
func BuildInvite(event persistence.Event, organizer Organizer, recipients []Recipient, stamp time.Time) (*Attachment, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("build invite: event id is required")
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId(icsProductID)

	vevent := cal.AddEvent(event.ID)
	vevent.SetDtStampTime(stamp.UTC())
	vevent.SetCreatedTime(event.CreatedAt.UTC())
	vevent.SetModifiedAt(event.UpdatedAt.UTC())
	vevent.SetStartAt(event.Start.UTC())
	vevent.SetEndAt(event.End.UTC())
	vevent.SetSummary(event.Title)
	if event.Description != "" {
		vevent.SetDescription(event.Description)
	}
	if event.Location != "" {
		vevent.SetLocation(event.Location)
	}
	if event.MeetingLink != "" {
		vevent.SetURL(event.MeetingLink)
	}
	if organizer.Email != "" {
		vevent.SetOrganizer("mailto:"+organizer.Email, ics.WithCN(organizer.Name))
	}
	for _, r := range recipients {
		if !ValidAddress(r.Email) {
			continue
		}
		vevent.AddAttendee("mailto:"+r.Email,
			ics.WithCN(r.Name),
			ics.CalendarUserTypeIndividual,
			ics.ParticipationRoleReqParticipant,
			ics.ParticipationStatusNeedsAction,
			ics.WithRSVP(true),
		)
	}

	name := slug.Make(event.Title)
	if name == "" {
		name = "event"
	}
	return &Attachment{
		Filename:    name + ".ics",
		ContentType: icsContentType,
		Data:        []byte(cal.Serialize()),
	}, nil
}
