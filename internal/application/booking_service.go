package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/event-booking/internal/notification"
	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/scheduler"
)

const (
	maxTitleLength        = 255
	defaultNotificationsN = 50
	maxNotificationsN     = 500
	upcomingEventsN       = 5
)

// NotificationSender dispatches one template to a recipient list.
// *notification.Dispatcher satisfies it.
type NotificationSender interface {
	Send(ctx context.Context, eventID string, recipients []notification.Recipient, tmpl notification.Template) notification.Result
}

// BookingServiceConfig wires the collaborators of a BookingService.
type BookingServiceConfig struct {
	Store      persistence.Store
	Dispatcher NotificationSender
	Planner    *scheduler.ReminderPlanner
	Organizer  notification.Organizer
	// AvailabilityTTL enables the CheckAvailability cache when positive.
	AvailabilityTTL time.Duration
	IDGenerator     func() string
	Now             func() time.Time
	Logger          *slog.Logger
}

// BookingService creates, updates and cancels events without ever letting two
// scheduled events overlap, and sends invitations for new bookings.
type BookingService struct {
	store       persistence.Store
	dispatcher  NotificationSender
	planner     *scheduler.ReminderPlanner
	organizer   notification.Organizer
	cache       *availabilityCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(cfg BookingServiceConfig) *BookingService {
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Planner == nil {
		cfg.Planner = scheduler.NewReminderPlanner(nil, cfg.Now)
	}
	return &BookingService{
		store:       cfg.Store,
		dispatcher:  cfg.Dispatcher,
		planner:     cfg.Planner,
		organizer:   cfg.Organizer,
		cache:       newAvailabilityCache(cfg.AvailabilityTTL, 0, cfg.Now),
		idGenerator: cfg.IDGenerator,
		now:         cfg.Now,
		logger:      defaultLogger(cfg.Logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateEvent validates input, books the event together with its attendees and
// reminder plan in one transaction, then sends invitations. Conflict detection
// and the insert share the transaction, so concurrent callers cannot both
// claim an overlapping slot. Invitation failures are reported in the result and
// never undo the booking.
func (s *BookingService) CreateEvent(ctx context.Context, input CreateEventInput) (result CreateEventResult, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("event store not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent",
		"title", input.Title,
		"start", input.Start,
		"end", input.End,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"event_id", result.Event.ID,
			"attendee_count", len(result.Attendees),
			"reminder_count", len(result.Reminders),
			"emails_sent", result.Dispatch.Sent,
			"emails_failed", result.Dispatch.Failed,
		).InfoContext(ctx, "event created")
	}()

	vErr := validateEventInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	candidate := scheduler.TimeRange{Start: input.Start, End: input.End}
	createdAt := s.now()
	category := input.Category
	if category == "" {
		category = persistence.EventCategoryMeeting
	}
	event := persistence.Event{
		ID:          s.idGenerator(),
		Title:       strings.TrimSpace(input.Title),
		Category:    category,
		Description: input.Description,
		Location:    strings.TrimSpace(input.Location),
		MeetingLink: strings.TrimSpace(input.MeetingLink),
		Start:       input.Start,
		End:         input.End,
		Status:      persistence.EventStatusScheduled,
		CreatedBy:   input.CreatedBy,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		conflicts, err := findConflicts(ctx, tx, candidate, "")
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		if err := tx.CreateEvent(ctx, event); err != nil {
			return err
		}

		attendees, err := s.resolveAttendees(ctx, tx, event, input.ExternalAttendees, createdAt)
		if err != nil {
			return err
		}
		if err := tx.CreateAttendees(ctx, attendees); err != nil {
			return err
		}

		reminders := s.planReminders(event, createdAt)
		if err := tx.CreateReminders(ctx, reminders); err != nil {
			return err
		}

		result = CreateEventResult{Event: event, Attendees: attendees, Reminders: reminders}
		return nil
	})
	if err != nil {
		result = CreateEventResult{}
		err = s.mapWriteError(ctx, err, candidate, "")
		return
	}
	s.cache.Invalidate()

	dispatch := s.sendInvitations(ctx, logger, result.Event, result.Attendees)
	result.Dispatch = summarize(dispatch)
	result.AttendeesNotified = s.markNotified(ctx, logger, &result, dispatch)
	return
}

// UpdateEvent applies patch to a scheduled event. A changed range is checked
// for conflicts against every other scheduled event; on conflict nothing is
// applied. Moving the start replaces the pending reminder plan.
func (s *BookingService) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) (event persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("event store not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("start", event.Start, "end", event.End).InfoContext(ctx, "event updated")
	}()

	var candidate scheduler.TimeRange
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		existing, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if existing.Status != persistence.EventStatusScheduled {
			return ErrNotFoundOrNotScheduled
		}

		updated, vErr := applyPatch(existing, patch)
		if vErr.HasErrors() {
			return vErr
		}
		candidate = scheduler.TimeRange{Start: updated.Start, End: updated.End}

		rangeChanged := !updated.Start.Equal(existing.Start) || !updated.End.Equal(existing.End)
		if rangeChanged {
			conflicts, err := findConflicts(ctx, tx, candidate, eventID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return &ConflictError{Conflicts: conflicts}
			}
		}

		now := s.now()
		startMoved := !updated.Start.Equal(existing.Start)
		if startMoved {
			updated.ReminderSent = false
			updated.ReminderSentAt = nil
		}
		updated.UpdatedAt = now

		if err := tx.UpdateEvent(ctx, updated); err != nil {
			return err
		}

		if startMoved {
			if err := tx.DeletePendingReminders(ctx, eventID); err != nil {
				return err
			}
			if err := tx.CreateReminders(ctx, s.planReminders(updated, now)); err != nil {
				return err
			}
		}

		event = updated
		return nil
	})
	if err != nil {
		event = persistence.Event{}
		err = s.mapWriteError(ctx, err, candidate, eventID)
		return
	}
	s.cache.Invalidate()
	return
}

// CancelEvent marks an event cancelled. Cancelling twice is not an error.
func (s *BookingService) CancelEvent(ctx context.Context, eventID string) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if s.store == nil {
		return fmt.Errorf("event store not configured")
	}

	logger := s.loggerWith(ctx, "CancelEvent", "event_id", eventID)

	alreadyCancelled := false
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		existing, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if existing.Status == persistence.EventStatusCancelled {
			alreadyCancelled = true
			return nil
		}
		existing.Status = persistence.EventStatusCancelled
		existing.UpdatedAt = s.now()
		return tx.UpdateEvent(ctx, existing)
	})
	if err != nil {
		err = mapEventRepoError(err)
		logger.ErrorContext(ctx, "failed to cancel event", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if alreadyCancelled {
		logger.InfoContext(ctx, "event already cancelled")
		return nil
	}
	s.cache.Invalidate()
	logger.InfoContext(ctx, "event cancelled")
	return nil
}

// CheckAvailability reports whether query's range is free, using the same
// conflict rule as CreateEvent. It never writes.
func (s *BookingService) CheckAvailability(ctx context.Context, query AvailabilityQuery) (result AvailabilityResult, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("event store not configured")
		return
	}

	logger := s.loggerWith(ctx, "CheckAvailability",
		"start", query.Start,
		"end", query.End,
	)

	vErr := &ValidationError{}
	validateRange(query.Start, query.End, vErr)
	if vErr.HasErrors() {
		err = vErr
		logger.ErrorContext(ctx, "failed to check availability", "error", err, "error_kind", ErrorKind(err))
		return
	}

	key := buildAvailabilityCacheKey(query)
	cached, generation, ok := s.cache.Get(key)
	if ok {
		logger.DebugContext(ctx, "availability served from cache", "available", cached.Available)
		return cached, nil
	}

	candidate := scheduler.TimeRange{Start: query.Start, End: query.End}
	conflicts, err := findConflicts(ctx, s.store, candidate, query.ExcludeEventID)
	if err != nil {
		err = mapEventRepoError(err)
		logger.ErrorContext(ctx, "failed to check availability", "error", err, "error_kind", ErrorKind(err))
		return
	}

	result = AvailabilityResult{Available: len(conflicts) == 0, Conflicts: conflicts}
	if result.Conflicts == nil {
		result.Conflicts = []persistence.Event{}
	}
	s.cache.Store(key, generation, result)
	logger.InfoContext(ctx, "availability checked", "available", result.Available, "conflict_count", len(conflicts))
	return result, nil
}

// GetEvent returns an event with its attendees and reminders.
func (s *BookingService) GetEvent(ctx context.Context, eventID string) (details EventDetails, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("event store not configured")
		return
	}

	details.Event, err = s.store.GetEvent(ctx, eventID)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}
	details.Attendees, err = s.store.ListAttendees(ctx, eventID)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}
	details.Reminders, err = s.store.ListReminders(ctx, eventID)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}
	return
}

// ListEvents returns events ordered by start time.
func (s *BookingService) ListEvents(ctx context.Context, params ListEventsParams) (events []persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.store == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListEvents")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list events", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(events)).DebugContext(ctx, "events listed")
	}()

	filter, vErr := buildEventFilter(params)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	events, err = s.store.ListEvents(ctx, filter)
	if err != nil {
		err = mapEventRepoError(err)
	}
	return
}

// Stats summarises scheduled events relative to now. The week runs from
// Monday 00:00 UTC for seven days.
func (s *BookingService) Stats(ctx context.Context) (stats Stats, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("event store not configured")
		return
	}

	scheduled, err := s.store.ListEvents(ctx, persistence.EventFilter{
		Statuses: []persistence.EventStatus{persistence.EventStatusScheduled},
	})
	if err != nil {
		err = mapEventRepoError(err)
		return
	}

	now := s.now()
	weekStart := startOfWeek(now)
	weekEnd := weekStart.AddDate(0, 0, 7)

	stats.TotalScheduled = len(scheduled)
	stats.Upcoming = []persistence.Event{}
	for _, event := range scheduled {
		if !event.Start.Before(weekStart) && event.Start.Before(weekEnd) {
			stats.ThisWeek++
		}
		if event.Category == persistence.EventCategoryMeeting {
			stats.Meetings++
		}
		if event.Start.After(now) {
			if !event.ReminderSent {
				stats.NeedingReminder++
			}
			if len(stats.Upcoming) < upcomingEventsN {
				stats.Upcoming = append(stats.Upcoming, event)
			}
		}
	}
	return
}

// ListNotifications returns the dispatch audit log newest first, optionally
// for a single event. A zero limit means 50; limits above 500 are capped.
func (s *BookingService) ListNotifications(ctx context.Context, eventID string, limit int) ([]persistence.NotificationLog, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	if s.store == nil {
		return nil, nil
	}
	if limit < 0 {
		vErr := &ValidationError{}
		vErr.add("limit", "limit must not be negative")
		return nil, vErr
	}
	if limit == 0 {
		limit = defaultNotificationsN
	}
	if limit > maxNotificationsN {
		limit = maxNotificationsN
	}

	entries, err := s.store.ListNotifications(ctx, persistence.NotificationFilter{EventID: eventID, Limit: limit})
	if err != nil {
		return nil, mapEventRepoError(err)
	}
	return entries, nil
}

// CreateRecipient adds an internal recipient to the directory. Email
// notifications default to enabled.
func (s *BookingService) CreateRecipient(ctx context.Context, input RecipientInput) (recipient persistence.Recipient, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("event store not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateRecipient", "email", input.Email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create recipient", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("recipient_id", recipient.ID).InfoContext(ctx, "recipient created")
	}()

	email := strings.TrimSpace(input.Email)
	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "email is required")
	} else if !notification.ValidAddress(email) {
		vErr.add("email", "email must be a valid address")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	notify := true
	if input.EmailNotifications != nil {
		notify = *input.EmailNotifications
	}
	createdAt := s.now()
	recipient = persistence.Recipient{
		ID:                 s.idGenerator(),
		Email:              email,
		DisplayName:        strings.TrimSpace(input.DisplayName),
		Active:             true,
		EmailNotifications: notify,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}

	if err = s.store.CreateRecipient(ctx, recipient); err != nil {
		recipient = persistence.Recipient{}
		err = mapEventRepoError(err)
	}
	return
}

func (s *BookingService) resolveAttendees(ctx context.Context, tx persistence.Repositories, event persistence.Event, external []ExternalAttendee, createdAt time.Time) ([]persistence.Attendee, error) {
	internal, err := tx.ListNotifiableRecipients(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(internal)+len(external))
	attendees := make([]persistence.Attendee, 0, len(internal)+len(external))
	for _, recipient := range internal {
		key := strings.ToLower(recipient.Email)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		recipientID := recipient.ID
		attendees = append(attendees, persistence.Attendee{
			ID:          s.idGenerator(),
			EventID:     event.ID,
			RecipientID: &recipientID,
			Email:       recipient.Email,
			DisplayName: recipient.DisplayName,
			CreatedAt:   createdAt,
		})
	}
	for _, guest := range external {
		email := strings.TrimSpace(guest.Email)
		key := strings.ToLower(email)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		attendees = append(attendees, persistence.Attendee{
			ID:          s.idGenerator(),
			EventID:     event.ID,
			Email:       email,
			DisplayName: strings.TrimSpace(guest.DisplayName),
			CreatedAt:   createdAt,
		})
	}
	return attendees, nil
}

func (s *BookingService) planReminders(event persistence.Event, createdAt time.Time) []persistence.Reminder {
	planned := s.planner.Plan(event.Start)
	reminders := make([]persistence.Reminder, 0, len(planned))
	for _, p := range planned {
		reminders = append(reminders, persistence.Reminder{
			ID:        s.idGenerator(),
			EventID:   event.ID,
			Kind:      p.Kind,
			DueAt:     p.DueAt,
			CreatedAt: createdAt,
		})
	}
	return reminders
}

func (s *BookingService) sendInvitations(ctx context.Context, logger *slog.Logger, event persistence.Event, attendees []persistence.Attendee) notification.Result {
	recipients := attendeesToRecipients(attendees)

	invite, err := notification.BuildInvite(event, s.organizer, recipients, s.now())
	if err != nil {
		logger.WarnContext(ctx, "failed to build calendar invite", "error", err)
		invite = nil
	}
	return dispatchTo(ctx, s.dispatcher, event.ID, recipients, notification.NewInvitation(event, invite))
}

// markNotified flags attendees whose invitation reached the transport and
// returns how many were flagged.
func (s *BookingService) markNotified(ctx context.Context, logger *slog.Logger, result *CreateEventResult, dispatch notification.Result) int {
	ids := make([]string, 0, dispatch.SuccessCount)
	for _, outcome := range dispatch.Succeeded() {
		if outcome.Recipient.AttendeeID != "" {
			ids = append(ids, outcome.Recipient.AttendeeID)
		}
	}
	if len(ids) == 0 {
		return 0
	}

	at := s.now()
	if err := s.store.MarkAttendeesNotified(context.WithoutCancel(ctx), ids, at); err != nil {
		logger.ErrorContext(ctx, "failed to mark attendees notified", "error", err)
		return 0
	}

	notified := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		notified[id] = struct{}{}
	}
	for i := range result.Attendees {
		if _, ok := notified[result.Attendees[i].ID]; ok {
			result.Attendees[i].NotificationSent = true
			notifiedAt := at
			result.Attendees[i].NotifiedAt = &notifiedAt
		}
	}
	return len(ids)
}

// mapWriteError converts transaction failures into service errors. A store
// level overlap rejection is reported like any other conflict.
func (s *BookingService) mapWriteError(ctx context.Context, err error, candidate scheduler.TimeRange, excludeID string) error {
	if !errors.Is(err, persistence.ErrOverlap) {
		return mapEventRepoError(err)
	}
	conflicts, lookupErr := findConflicts(ctx, s.store, candidate, excludeID)
	if lookupErr != nil {
		return &ConflictError{}
	}
	return &ConflictError{Conflicts: conflicts}
}

// findConflicts loads the scheduled events overlapping candidate and applies
// the half-open overlap rule to them, ignoring excludeID.
func findConflicts(ctx context.Context, events persistence.EventRepository, candidate scheduler.TimeRange, excludeID string) ([]persistence.Event, error) {
	start, end := candidate.Start, candidate.End
	active, err := events.ListEvents(ctx, persistence.EventFilter{
		Statuses:    []persistence.EventStatus{persistence.EventStatusScheduled},
		WindowStart: &start,
		WindowEnd:   &end,
	})
	if err != nil {
		return nil, fmt.Errorf("list scheduled events: %w", err)
	}

	bookings := make([]scheduler.Booking, 0, len(active))
	byID := make(map[string]persistence.Event, len(active))
	for _, event := range active {
		byID[event.ID] = event
		bookings = append(bookings, scheduler.Booking{
			ID:    event.ID,
			Title: event.Title,
			Range: scheduler.TimeRange{Start: event.Start, End: event.End},
		})
	}

	found := scheduler.DetectConflicts(bookings, candidate, excludeID)
	if len(found) == 0 {
		return nil, nil
	}
	conflicts := make([]persistence.Event, 0, len(found))
	for _, booking := range found {
		conflicts = append(conflicts, byID[booking.ID])
	}
	return conflicts, nil
}

func validateEventInput(input CreateEventInput) *ValidationError {
	vErr := &ValidationError{}

	validateTitle(input.Title, vErr)
	if input.Category != "" && !input.Category.Valid() {
		vErr.add("category", "category must be one of meeting, organization_event, reminder")
	}
	validateMeetingLink(input.MeetingLink, vErr)
	validateRange(input.Start, input.End, vErr)

	for i, guest := range input.ExternalAttendees {
		if strings.TrimSpace(guest.Email) == "" {
			vErr.add(fmt.Sprintf("attendees[%d].email", i), "email is required")
		}
	}
	return vErr
}

func applyPatch(existing persistence.Event, patch EventPatch) (persistence.Event, *ValidationError) {
	updated := existing
	vErr := &ValidationError{}

	if patch.Title != nil {
		validateTitle(*patch.Title, vErr)
		updated.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Category != nil {
		if !patch.Category.Valid() {
			vErr.add("category", "category must be one of meeting, organization_event, reminder")
		}
		updated.Category = *patch.Category
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Location != nil {
		updated.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.MeetingLink != nil {
		validateMeetingLink(*patch.MeetingLink, vErr)
		updated.MeetingLink = strings.TrimSpace(*patch.MeetingLink)
	}
	if patch.Start != nil {
		updated.Start = *patch.Start
	}
	if patch.End != nil {
		updated.End = *patch.End
	}

	rangeErr := &ValidationError{}
	validateRange(updated.Start, updated.End, rangeErr)
	vErr.merge(rangeErr)
	return updated, vErr
}

func validateTitle(title string, vErr *ValidationError) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		vErr.add("title", "title is required")
	} else if len(trimmed) > maxTitleLength {
		vErr.add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
}

func validateMeetingLink(link string, vErr *ValidationError) {
	link = strings.TrimSpace(link)
	if link == "" {
		return
	}
	if _, err := url.ParseRequestURI(link); err != nil {
		vErr.add("meeting_link", "must be a valid URL")
	}
}

func validateRange(start, end time.Time, vErr *ValidationError) {
	if start.IsZero() {
		vErr.add("start", "start is required")
	}
	if end.IsZero() {
		vErr.add("end", "end is required")
	}
	if start.IsZero() || end.IsZero() {
		return
	}
	if _, err := scheduler.NewTimeRange(start, end); err != nil {
		vErr.add("end", "start must be before end")
	}
}

func buildEventFilter(params ListEventsParams) (persistence.EventFilter, *ValidationError) {
	vErr := &ValidationError{}
	filter := persistence.EventFilter{
		WindowStart: params.From,
		WindowEnd:   params.To,
		Limit:       params.Limit,
	}

	switch params.Status {
	case "", string(persistence.EventStatusScheduled):
		filter.Statuses = []persistence.EventStatus{persistence.EventStatusScheduled}
	case string(persistence.EventStatusCancelled):
		filter.Statuses = []persistence.EventStatus{persistence.EventStatusCancelled}
	case ListEventsStatusAll:
	default:
		vErr.add("status", "status must be one of scheduled, cancelled, all")
	}

	if params.Category != "" {
		if !params.Category.Valid() {
			vErr.add("category", "category must be one of meeting, organization_event, reminder")
		}
		filter.Category = params.Category
	}
	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		vErr.add("to", "from must be before to")
	}
	if params.Limit < 0 {
		vErr.add("limit", "limit must not be negative")
	}
	return filter, vErr
}

func attendeesToRecipients(attendees []persistence.Attendee) []notification.Recipient {
	recipients := make([]notification.Recipient, 0, len(attendees))
	for _, attendee := range attendees {
		recipients = append(recipients, notification.Recipient{
			AttendeeID: attendee.ID,
			Email:      attendee.Email,
			Name:       attendee.DisplayName,
		})
	}
	return recipients
}

// dispatchTo sends through sender, counting every recipient as failed when no
// sender is configured.
func dispatchTo(ctx context.Context, sender NotificationSender, eventID string, recipients []notification.Recipient, tmpl notification.Template) notification.Result {
	if sender == nil {
		var none *notification.Dispatcher
		return none.Send(ctx, eventID, recipients, tmpl)
	}
	return sender.Send(ctx, eventID, recipients, tmpl)
}

func startOfWeek(t time.Time) time.Time {
	utc := t.UTC()
	start := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	// Monday == 1, Sunday == 0.
	offset := (int(start.Weekday()) + 6) % 7
	return start.AddDate(0, 0, -offset)
}

func mapEventRepoError(err error) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		return cErr
	}
	switch {
	case errors.Is(err, ErrNotFoundOrNotScheduled):
		return ErrNotFoundOrNotScheduled
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	}
	return err
}
