package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/event-booking/internal/persistence"
)

// repos implements persistence.Repositories against either the pool or a
// transaction.
type repos struct {
	ext     sqlx.ExtContext
	dialect Dialect
}

var _ persistence.Repositories = repos{}

func (r repos) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := r.ext.ExecContext(ctx, r.ext.Rebind(query), args...)
	if err != nil {
		return 0, r.dialect.mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, r.dialect.mapError(err)
	}
	return affected, nil
}

func (r repos) get(ctx context.Context, dest any, query string, args ...any) error {
	return r.dialect.mapError(sqlx.GetContext(ctx, r.ext, dest, r.ext.Rebind(query), args...))
}

func (r repos) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return r.dialect.mapError(sqlx.SelectContext(ctx, r.ext, dest, r.ext.Rebind(query), args...))
}

// --- EventRepository implementation ---

func (r repos) CreateEvent(ctx context.Context, event persistence.Event) error {
	_, err := r.exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.Title, string(event.Category), event.Description, event.Location, event.MeetingLink,
		r.dialect.timeArg(event.Start), r.dialect.timeArg(event.End), string(event.Status),
		event.ReminderSent, r.dialect.nullTimeArg(event.ReminderSentAt), event.CreatedBy,
		r.dialect.timeArg(event.CreatedAt), r.dialect.timeArg(event.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", event.ID, err)
	}
	return nil
}

func (r repos) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	var row eventRow
	if err := r.get(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id); err != nil {
		return persistence.Event{}, err
	}
	return row.toModel(), nil
}

func (r repos) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		clauses = append(clauses, "status IN (?)")
		args = append(args, statuses)
	}
	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.WindowEnd != nil {
		clauses = append(clauses, "start_at < ?")
		args = append(args, r.dialect.timeArg(*filter.WindowEnd))
	}
	if filter.WindowStart != nil {
		clauses = append(clauses, "end_at > ?")
		args = append(args, r.dialect.timeArg(*filter.WindowStart))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expand event filter: %w", err)
	}

	var rows []eventRow
	if err := r.selectAll(ctx, &rows, expanded, expandedArgs...); err != nil {
		return nil, err
	}
	events := make([]persistence.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toModel())
	}
	return events, nil
}

func (r repos) UpdateEvent(ctx context.Context, event persistence.Event) error {
	affected, err := r.exec(ctx, `
		UPDATE events
		SET title = ?, category = ?, description = ?, location = ?, meeting_link = ?,
			start_at = ?, end_at = ?, status = ?, reminder_sent = ?, reminder_sent_at = ?, updated_at = ?
		WHERE id = ?
	`,
		event.Title, string(event.Category), event.Description, event.Location, event.MeetingLink,
		r.dialect.timeArg(event.Start), r.dialect.timeArg(event.End), string(event.Status),
		event.ReminderSent, r.dialect.nullTimeArg(event.ReminderSentAt), r.dialect.timeArg(event.UpdatedAt),
		event.ID,
	)
	if err != nil {
		return fmt.Errorf("update event %s: %w", event.ID, err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// --- AttendeeRepository implementation ---

func (r repos) CreateAttendees(ctx context.Context, attendees []persistence.Attendee) error {
	for _, attendee := range attendees {
		var recipientID any
		if attendee.RecipientID != nil {
			recipientID = *attendee.RecipientID
		}
		_, err := r.exec(ctx, `
			INSERT INTO event_attendees (id, event_id, recipient_id, email, display_name, notification_sent, notified_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			attendee.ID, attendee.EventID, recipientID, attendee.Email, attendee.DisplayName,
			attendee.NotificationSent, r.dialect.nullTimeArg(attendee.NotifiedAt), r.dialect.timeArg(attendee.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert attendee %s: %w", attendee.ID, err)
		}
	}
	return nil
}

func (r repos) ListAttendees(ctx context.Context, eventID string) ([]persistence.Attendee, error) {
	var rows []attendeeRow
	err := r.selectAll(ctx, &rows, `
		SELECT id, event_id, recipient_id, email, display_name, notification_sent, notified_at, created_at
		FROM event_attendees
		WHERE event_id = ?
		ORDER BY created_at ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, err
	}
	attendees := make([]persistence.Attendee, 0, len(rows))
	for _, row := range rows {
		attendees = append(attendees, row.toModel())
	}
	return attendees, nil
}

func (r repos) MarkAttendeesNotified(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE event_attendees SET notification_sent = ?, notified_at = ? WHERE id IN (?)`,
		true, r.dialect.timeArg(at), ids)
	if err != nil {
		return fmt.Errorf("expand attendee ids: %w", err)
	}
	if _, err := r.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark attendees notified: %w", err)
	}
	return nil
}

// --- ReminderRepository implementation ---

func (r repos) CreateReminders(ctx context.Context, reminders []persistence.Reminder) error {
	for _, reminder := range reminders {
		_, err := r.exec(ctx, `
			INSERT INTO event_reminders (id, event_id, kind, due_at, sent, sent_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			reminder.ID, reminder.EventID, reminder.Kind, r.dialect.timeArg(reminder.DueAt),
			reminder.Sent, r.dialect.nullTimeArg(reminder.SentAt), r.dialect.timeArg(reminder.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert reminder %s: %w", reminder.ID, err)
		}
	}
	return nil
}

const reminderColumns = `id, event_id, kind, due_at, sent, sent_at, created_at`

func (r repos) ListReminders(ctx context.Context, eventID string) ([]persistence.Reminder, error) {
	return r.listReminders(ctx, `SELECT `+reminderColumns+` FROM event_reminders WHERE event_id = ? ORDER BY due_at ASC, id ASC`, eventID)
}

func (r repos) ListDueUnsentReminders(ctx context.Context, now time.Time) ([]persistence.Reminder, error) {
	return r.listReminders(ctx, `SELECT `+reminderColumns+` FROM event_reminders WHERE sent = ? AND due_at <= ? ORDER BY due_at ASC, id ASC`,
		false, r.dialect.timeArg(now))
}

func (r repos) listReminders(ctx context.Context, query string, args ...any) ([]persistence.Reminder, error) {
	var rows []reminderRow
	if err := r.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	reminders := make([]persistence.Reminder, 0, len(rows))
	for _, row := range rows {
		reminders = append(reminders, row.toModel())
	}
	return reminders, nil
}

func (r repos) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	affected, err := r.exec(ctx, `UPDATE event_reminders SET sent = ?, sent_at = ? WHERE id = ? AND sent = ?`,
		true, r.dialect.timeArg(at), id, false)
	if err != nil {
		return false, fmt.Errorf("mark reminder %s sent: %w", id, err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists int
	if err := r.get(ctx, &exists, `SELECT COUNT(*) FROM event_reminders WHERE id = ?`, id); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, persistence.ErrNotFound
	}
	return false, nil
}

func (r repos) DeletePendingReminders(ctx context.Context, eventID string) error {
	if _, err := r.exec(ctx, `DELETE FROM event_reminders WHERE event_id = ? AND sent = ?`, eventID, false); err != nil {
		return fmt.Errorf("delete pending reminders for %s: %w", eventID, err)
	}
	return nil
}

// --- NotificationLogRepository implementation ---

func (r repos) RecordNotification(ctx context.Context, entry persistence.NotificationLog) error {
	_, err := r.exec(ctx, `
		INSERT INTO event_notifications (id, event_id, kind, recipient_email, recipient_name, subject, status, message_id, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.EventID, string(entry.Kind), entry.RecipientEmail, entry.RecipientName, entry.Subject,
		string(entry.Status), entry.MessageID, entry.Error, r.dialect.timeArg(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification %s: %w", entry.ID, err)
	}
	return nil
}

func (r repos) ListNotifications(ctx context.Context, filter persistence.NotificationFilter) ([]persistence.NotificationLog, error) {
	query := `SELECT id, event_id, kind, recipient_email, recipient_name, subject, status, message_id, error_message, created_at
		FROM event_notifications`
	var args []any
	if filter.EventID != "" {
		query += " WHERE event_id = ?"
		args = append(args, filter.EventID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []notificationRow
	if err := r.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	entries := make([]persistence.NotificationLog, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toModel())
	}
	return entries, nil
}

// --- RecipientRepository implementation ---

func (r repos) CreateRecipient(ctx context.Context, recipient persistence.Recipient) error {
	_, err := r.exec(ctx, `
		INSERT INTO recipients (id, email, display_name, active, email_notifications, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		recipient.ID, recipient.Email, recipient.DisplayName, recipient.Active, recipient.EmailNotifications,
		r.dialect.timeArg(recipient.CreatedAt), r.dialect.timeArg(recipient.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert recipient %s: %w", recipient.ID, err)
	}
	return nil
}

func (r repos) ListNotifiableRecipients(ctx context.Context) ([]persistence.Recipient, error) {
	var rows []recipientRow
	err := r.selectAll(ctx, &rows, `
		SELECT id, email, display_name, active, email_notifications, created_at, updated_at
		FROM recipients
		WHERE active = ? AND email_notifications = ?
		ORDER BY created_at ASC, id ASC
	`, true, true)
	if err != nil {
		return nil, err
	}
	recipients := make([]persistence.Recipient, 0, len(rows))
	for _, row := range rows {
		recipients = append(recipients, row.toModel())
	}
	return recipients, nil
}
