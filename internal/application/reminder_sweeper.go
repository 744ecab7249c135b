package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/event-booking/internal/notification"
	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/scheduler"
)

// ManualReminderKind labels reminders sent on demand rather than from the plan.
const ManualReminderKind = "manual"

// ReminderSweeperConfig wires the collaborators of a ReminderSweeper.
type ReminderSweeperConfig struct {
	Store      persistence.Store
	Dispatcher NotificationSender
	// PrimaryKind is the reminder kind that marks an event as reminded.
	// Defaults to the largest default offset.
	PrimaryKind string
	// Deadline bounds one sweep. Reminders left when it passes wait for the next run.
	Deadline time.Duration
	// Schedule describes how often sweeps run, for status reporting only.
	Schedule string
	Now      func() time.Time
	Logger   *slog.Logger
}

// SweepReport summarises one sweep.
type SweepReport struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	Due             int
	Processed       int
	SkippedInactive int
	Errors          int
	EmailsSent      int
	EmailsFailed    int
	DeadlineReached bool
}

// SweeperStatus describes the sweeper for operators.
type SweeperStatus struct {
	Running    bool
	Schedule   string
	LastRunAt  *time.Time
	LastReport *SweepReport
	NextRunAt  *time.Time
}

// ReminderSweeper sends due reminders and marks each one sent exactly once.
// Only one sweep runs at a time; overlapping requests get ErrSweepInProgress.
type ReminderSweeper struct {
	store       persistence.Store
	dispatcher  NotificationSender
	primaryKind string
	deadline    time.Duration
	schedule    string
	now         func() time.Time
	logger      *slog.Logger

	running atomic.Bool

	mu         sync.Mutex
	lastReport *SweepReport
	nextRun    func() (time.Time, bool)
}

// NewReminderSweeper constructs a sweeper with the provided dependencies.
func NewReminderSweeper(cfg ReminderSweeperConfig) *ReminderSweeper {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PrimaryKind == "" {
		cfg.PrimaryKind = scheduler.DefaultReminderOffsets[0].Kind
	}
	return &ReminderSweeper{
		store:       cfg.Store,
		dispatcher:  cfg.Dispatcher,
		primaryKind: cfg.PrimaryKind,
		deadline:    cfg.Deadline,
		schedule:    cfg.Schedule,
		now:         cfg.Now,
		logger:      defaultLogger(cfg.Logger),
	}
}

func (s *ReminderSweeper) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReminderSweeper", operation, attrs...)
}

// SetNextRun registers a source for the next scheduled run shown in Status.
func (s *ReminderSweeper) SetNextRun(next func() (time.Time, bool)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()
}

// Sweep processes every reminder that is due and unsent. Reminders of events
// that are no longer scheduled are skipped and stay pending. Every other due
// reminder is marked sent after its dispatch, whatever the delivery outcome.
// A failure on one reminder is logged and the sweep moves on.
func (s *ReminderSweeper) Sweep(ctx context.Context) (report SweepReport, err error) {
	if s == nil {
		err = fmt.Errorf("ReminderSweeper is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("event store not configured")
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		err = ErrSweepInProgress
		return
	}
	defer s.running.Store(false)

	logger := s.loggerWith(ctx, "Sweep")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "reminder sweep failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reminder sweep completed",
			"due", report.Due,
			"processed", report.Processed,
			"skipped_inactive", report.SkippedInactive,
			"errors", report.Errors,
			"emails_sent", report.EmailsSent,
			"emails_failed", report.EmailsFailed,
			"deadline_reached", report.DeadlineReached,
		)
	}()

	report.StartedAt = s.now()
	due, err := s.store.ListDueUnsentReminders(ctx, report.StartedAt)
	if err != nil {
		err = fmt.Errorf("list due reminders: %w", err)
		return
	}
	report.Due = len(due)

	var deadline time.Time
	if s.deadline > 0 {
		deadline = report.StartedAt.Add(s.deadline)
	}

	for _, reminder := range due {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}
		if !deadline.IsZero() && !s.now().Before(deadline) {
			report.DeadlineReached = true
			break
		}

		outcome, procErr := s.processReminder(ctx, reminder)
		switch {
		case procErr != nil:
			report.Errors++
			logger.ErrorContext(ctx, "failed to process reminder",
				"reminder_id", reminder.ID,
				"event_id", reminder.EventID,
				"error", procErr,
			)
		case outcome.skipped:
			report.SkippedInactive++
		default:
			report.Processed++
			report.EmailsSent += outcome.dispatch.SuccessCount
			report.EmailsFailed += outcome.dispatch.FailureCount
		}
	}

	report.FinishedAt = s.now()
	s.recordReport(report)
	return
}

type reminderOutcome struct {
	skipped  bool
	dispatch notification.Result
}

func (s *ReminderSweeper) processReminder(ctx context.Context, reminder persistence.Reminder) (outcome reminderOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing reminder %s: %v", reminder.ID, r)
		}
	}()

	event, err := s.store.GetEvent(ctx, reminder.EventID)
	if err != nil {
		return outcome, fmt.Errorf("load event: %w", err)
	}
	if event.Status != persistence.EventStatusScheduled {
		outcome.skipped = true
		return outcome, nil
	}

	recipients, err := s.recipientsFor(ctx, event.ID)
	if err != nil {
		return outcome, err
	}

	outcome.dispatch = dispatchTo(ctx, s.dispatcher, event.ID, recipients, notification.NewReminder(event, reminder.Kind))

	if err := s.markSent(ctx, reminder); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// markSent records the attempt. It runs detached from ctx so a shutdown
// arriving after dispatch does not leave the reminder pending to be sent again.
func (s *ReminderSweeper) markSent(ctx context.Context, reminder persistence.Reminder) error {
	at := s.now()
	return s.store.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, tx persistence.Repositories) error {
		transitioned, err := tx.MarkReminderSent(ctx, reminder.ID, at)
		if err != nil {
			return fmt.Errorf("mark reminder sent: %w", err)
		}
		if !transitioned || reminder.Kind != s.primaryKind {
			return nil
		}
		return markEventReminded(ctx, tx, reminder.EventID, at)
	})
}

// SendManualReminder sends a reminder for a scheduled event immediately,
// independent of the reminder plan, and marks the event as reminded.
func (s *ReminderSweeper) SendManualReminder(ctx context.Context, eventID string) (summary DispatchSummary, err error) {
	if s == nil {
		err = fmt.Errorf("ReminderSweeper is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("event store not configured")
		return
	}

	logger := s.loggerWith(ctx, "SendManualReminder", "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to send manual reminder", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("emails_sent", summary.Sent, "emails_failed", summary.Failed).InfoContext(ctx, "manual reminder sent")
	}()

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFoundOrNotScheduled
		}
		return
	}
	if event.Status != persistence.EventStatusScheduled {
		err = ErrNotFoundOrNotScheduled
		return
	}

	recipients, err := s.recipientsFor(ctx, event.ID)
	if err != nil {
		return
	}

	result := dispatchTo(ctx, s.dispatcher, event.ID, recipients, notification.NewReminder(event, ManualReminderKind))
	summary = summarize(result)

	at := s.now()
	markErr := s.store.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, tx persistence.Repositories) error {
		return markEventReminded(ctx, tx, event.ID, at)
	})
	if markErr != nil {
		logger.ErrorContext(ctx, "failed to mark event reminded", "error", markErr)
	}
	return
}

// Status reports whether a sweep is running and what the last one did.
func (s *ReminderSweeper) Status() SweeperStatus {
	if s == nil {
		return SweeperStatus{}
	}
	status := SweeperStatus{Running: s.running.Load(), Schedule: s.schedule}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport != nil {
		report := *s.lastReport
		startedAt := report.StartedAt
		status.LastReport = &report
		status.LastRunAt = &startedAt
	}
	if s.nextRun != nil {
		if next, ok := s.nextRun(); ok {
			status.NextRunAt = &next
		}
	}
	return status
}

func (s *ReminderSweeper) recordReport(report SweepReport) {
	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()
}

func (s *ReminderSweeper) recipientsFor(ctx context.Context, eventID string) ([]notification.Recipient, error) {
	attendees, err := s.store.ListAttendees(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return attendeesToRecipients(attendees), nil
}

func markEventReminded(ctx context.Context, tx persistence.Repositories, eventID string, at time.Time) error {
	event, err := tx.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	sentAt := at
	event.ReminderSent = true
	event.ReminderSentAt = &sentAt
	if err := tx.UpdateEvent(ctx, event); err != nil {
		return fmt.Errorf("mark event reminded: %w", err)
	}
	return nil
}
