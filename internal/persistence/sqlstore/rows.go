package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/example/event-booking/internal/persistence"
)

// dbTime scans timestamps stored either natively or as text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		parsed, err := parseTime(v)
		if err != nil {
			return err
		}
		t.Time, t.Valid = parsed, true
		return nil
	case []byte:
		parsed, err := parseTime(string(v))
		if err != nil {
			return err
		}
		t.Time, t.Valid = parsed, true
		return nil
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into timestamp", src)
	}
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}

type eventRow struct {
	ID             string `db:"id"`
	Title          string `db:"title"`
	Category       string `db:"category"`
	Description    string `db:"description"`
	Location       string `db:"location"`
	MeetingLink    string `db:"meeting_link"`
	StartAt        dbTime `db:"start_at"`
	EndAt          dbTime `db:"end_at"`
	Status         string `db:"status"`
	ReminderSent   bool   `db:"reminder_sent"`
	ReminderSentAt dbTime `db:"reminder_sent_at"`
	CreatedBy      string `db:"created_by"`
	CreatedAt      dbTime `db:"created_at"`
	UpdatedAt      dbTime `db:"updated_at"`
}

const eventColumns = `id, title, category, description, location, meeting_link, start_at, end_at, status,
	reminder_sent, reminder_sent_at, created_by, created_at, updated_at`

func (r eventRow) toModel() persistence.Event {
	return persistence.Event{
		ID:             r.ID,
		Title:          r.Title,
		Category:       persistence.EventCategory(r.Category),
		Description:    r.Description,
		Location:       r.Location,
		MeetingLink:    r.MeetingLink,
		Start:          r.StartAt.Time,
		End:            r.EndAt.Time,
		Status:         persistence.EventStatus(r.Status),
		ReminderSent:   r.ReminderSent,
		ReminderSentAt: r.ReminderSentAt.ptr(),
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
}

type attendeeRow struct {
	ID               string         `db:"id"`
	EventID          string         `db:"event_id"`
	RecipientID      sql.NullString `db:"recipient_id"`
	Email            string         `db:"email"`
	DisplayName      string         `db:"display_name"`
	NotificationSent bool           `db:"notification_sent"`
	NotifiedAt       dbTime         `db:"notified_at"`
	CreatedAt        dbTime         `db:"created_at"`
}

func (r attendeeRow) toModel() persistence.Attendee {
	attendee := persistence.Attendee{
		ID:               r.ID,
		EventID:          r.EventID,
		Email:            r.Email,
		DisplayName:      r.DisplayName,
		NotificationSent: r.NotificationSent,
		NotifiedAt:       r.NotifiedAt.ptr(),
		CreatedAt:        r.CreatedAt.Time,
	}
	if r.RecipientID.Valid {
		id := r.RecipientID.String
		attendee.RecipientID = &id
	}
	return attendee
}

type reminderRow struct {
	ID        string `db:"id"`
	EventID   string `db:"event_id"`
	Kind      string `db:"kind"`
	DueAt     dbTime `db:"due_at"`
	Sent      bool   `db:"sent"`
	SentAt    dbTime `db:"sent_at"`
	CreatedAt dbTime `db:"created_at"`
}

func (r reminderRow) toModel() persistence.Reminder {
	return persistence.Reminder{
		ID:        r.ID,
		EventID:   r.EventID,
		Kind:      r.Kind,
		DueAt:     r.DueAt.Time,
		Sent:      r.Sent,
		SentAt:    r.SentAt.ptr(),
		CreatedAt: r.CreatedAt.Time,
	}
}

type notificationRow struct {
	ID             string `db:"id"`
	EventID        string `db:"event_id"`
	Kind           string `db:"kind"`
	RecipientEmail string `db:"recipient_email"`
	RecipientName  string `db:"recipient_name"`
	Subject        string `db:"subject"`
	Status         string `db:"status"`
	MessageID      string `db:"message_id"`
	ErrorText      string `db:"error_message"`
	CreatedAt      dbTime `db:"created_at"`
}

func (r notificationRow) toModel() persistence.NotificationLog {
	return persistence.NotificationLog{
		ID:             r.ID,
		EventID:        r.EventID,
		Kind:           persistence.NotificationKind(r.Kind),
		RecipientEmail: r.RecipientEmail,
		RecipientName:  r.RecipientName,
		Subject:        r.Subject,
		Status:         persistence.NotificationStatus(r.Status),
		MessageID:      r.MessageID,
		Error:          r.ErrorText,
		CreatedAt:      r.CreatedAt.Time,
	}
}

type recipientRow struct {
	ID                 string `db:"id"`
	Email              string `db:"email"`
	DisplayName        string `db:"display_name"`
	Active             bool   `db:"active"`
	EmailNotifications bool   `db:"email_notifications"`
	CreatedAt          dbTime `db:"created_at"`
	UpdatedAt          dbTime `db:"updated_at"`
}

func (r recipientRow) toModel() persistence.Recipient {
	return persistence.Recipient{
		ID:                 r.ID,
		Email:              r.Email,
		DisplayName:        r.DisplayName,
		Active:             r.Active,
		EmailNotifications: r.EmailNotifications,
		CreatedAt:          r.CreatedAt.Time,
		UpdatedAt:          r.UpdatedAt.Time,
	}
}
