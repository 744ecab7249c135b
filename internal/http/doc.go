// Package http exposes the booking engine over a JSON API built on echo.
//
// The router exposes the following endpoints under /api/v1:
//   - POST /events: books an event. Body: createEventRequest. Responds 201 with
//     the event, its attendees, planned reminders and the invitation tally, or
//     409 with the conflicting events when the range is taken.
//   - GET /events, GET /events/:id: list (query: from, to, category, status,
//     limit) and detail including attendees and reminders.
//   - PATCH /events/:id: partial update with the same conflict rules as booking.
//   - DELETE /events/:id: cancels the event. Idempotent, responds 204.
//   - POST /events/:id/send-reminder: sends a reminder now.
//   - POST /check-availability: {"start","end","exclude_event_id"}.
//   - POST /process-reminders, GET /reminders/status: manual sweep and sweeper status.
//   - GET /stats, GET /notifications: dashboard counters and the audit log.
//
// GET /healthz pings the store. Timestamps are RFC 3339 in UTC. Errors use
// errorResponse: 422 for validation failures with per field messages, 409 for
// conflicts and overlapping sweeps, 404 for unknown or cancelled events.
package http
