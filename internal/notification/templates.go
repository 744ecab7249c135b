package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/example/event-booking/internal/persistence"
)

const displayLayout = "Monday, January 2, 2006 15:04 MST"

var pageTemplates = template.Must(template.New("invitation").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>{{if .IsMeeting}}New Meeting{{else}}New Event{{end}}</h2>
  <p>Hello {{.Name}},</p>
  <p>You have been invited to the following {{if .IsMeeting}}meeting{{else}}event{{end}}:</p>
  {{template "details" .}}
  <p>A calendar invitation is attached.</p>
</div>`))

func init() {
	template.Must(pageTemplates.New("reminder").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Event Reminder</h2>
  <p>Hello {{.Name}},</p>
  <p><strong>{{.Lead}}</strong></p>
  {{template "details" .}}
</div>`))
	template.Must(pageTemplates.New("details").Parse(`<div style="background-color: #f8fafc; padding: 16px; border-radius: 8px;">
  <h3 style="margin: 0 0 12px 0;">{{.Event.Title}}</h3>
  <p><strong>Starts:</strong> {{.Starts}}</p>
  <p><strong>Ends:</strong> {{.Ends}}</p>
  {{with .Event.Location}}<p><strong>Location:</strong> {{.}}</p>{{end}}
  {{with .Event.MeetingLink}}<p><strong>Meeting link:</strong> <a href="{{.}}">{{.}}</a></p>{{end}}
  {{with .Event.Description}}<p>{{.}}</p>{{end}}
</div>`))
}

type pageData struct {
	Name      string
	Event     persistence.Event
	IsMeeting bool
	Starts    string
	Ends      string
	Lead      string
}

func newPageData(event persistence.Event, recipient Recipient) pageData {
	name := recipient.Name
	if name == "" {
		name = recipient.Email
	}
	return pageData{
		Name:      name,
		Event:     event,
		IsMeeting: event.Category == persistence.EventCategoryMeeting,
		Starts:    event.Start.UTC().Format(displayLayout),
		Ends:      event.End.UTC().Format(displayLayout),
	}
}

func render(name string, data pageData) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", name, err)
	}
	return buf.String(), nil
}

// InvitationTemplate announces a newly booked event and carries an .ics invite.
type InvitationTemplate struct {
	event  persistence.Event
	invite *Attachment
}

// NewInvitation builds the invitation for event. invite may be nil.
func NewInvitation(event persistence.Event, invite *Attachment) *InvitationTemplate {
	return &InvitationTemplate{event: event, invite: invite}
}

// Kind implements Template.
func (t *InvitationTemplate) Kind() persistence.NotificationKind {
	return persistence.NotificationKindInvitation
}

// Subject implements Template.
func (t *InvitationTemplate) Subject() string {
	if t.event.Category == persistence.EventCategoryMeeting {
		return "New Meeting: " + t.event.Title
	}
	return "New Event: " + t.event.Title
}

// Render implements Template.
func (t *InvitationTemplate) Render(recipient Recipient) (Message, error) {
	body, err := render("invitation", newPageData(t.event, recipient))
	if err != nil {
		return Message{}, err
	}
	msg := Message{ToName: recipient.Name, Subject: t.Subject(), HTML: body}
	if t.invite != nil {
		msg.Attachments = []Attachment{*t.invite}
	}
	return msg, nil
}

// ReminderTemplate reminds attendees of an upcoming event. Kind is the
// reminder kind (24_hours, 1_hour, manual, ...).
type ReminderTemplate struct {
	event persistence.Event
	kind  string
}

// NewReminder builds the reminder for event.
func NewReminder(event persistence.Event, kind string) *ReminderTemplate {
	return &ReminderTemplate{event: event, kind: kind}
}

// Kind implements Template.
func (t *ReminderTemplate) Kind() persistence.NotificationKind {
	return persistence.NotificationKindReminder
}

// Subject implements Template.
func (t *ReminderTemplate) Subject() string {
	switch t.kind {
	case "24_hours":
		return "Reminder: " + t.event.Title + " - Tomorrow"
	case "1_hour":
		return "Reminder: " + t.event.Title + " - Starting in 1 hour"
	default:
		return "Reminder: " + t.event.Title
	}
}

// Render implements Template.
func (t *ReminderTemplate) Render(recipient Recipient) (Message, error) {
	data := newPageData(t.event, recipient)
	data.Lead = t.lead()
	body, err := render("reminder", data)
	if err != nil {
		return Message{}, err
	}
	return Message{ToName: recipient.Name, Subject: t.Subject(), HTML: body}, nil
}

func (t *ReminderTemplate) lead() string {
	switch t.kind {
	case "24_hours":
		return "This event starts in approximately 24 hours."
	case "1_hour":
		return "This event starts in about an hour."
	default:
		return fmt.Sprintf("This event starts at %s.", t.event.Start.UTC().Format(time.Kitchen+" MST"))
	}
}
