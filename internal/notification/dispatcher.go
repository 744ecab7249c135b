// Package notification delivers invitation and reminder email to a recipient
// list under a fixed send rate, recording one audit entry per recipient.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/event-booking/internal/logging"
	"github.com/example/event-booking/internal/persistence"
)

// Defaults derived from the outbound provider quota of roughly 1.7 sends per second.
const (
	DefaultMinSpacing  = 600 * time.Millisecond
	DefaultSendTimeout = 10 * time.Second
)

// ReasonInvalidFormat is recorded for recipients whose address fails the shape check.
const ReasonInvalidFormat = "invalid format"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidAddress reports whether address has the basic user@domain.tld shape.
func ValidAddress(address string) bool {
	return emailPattern.MatchString(strings.TrimSpace(address))
}

// Recipient is one addressee of a dispatch.
type Recipient struct {
	AttendeeID string
	Email      string
	Name       string
}

// Attachment is a file carried alongside the HTML body.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a rendered email ready for a Transport.
type Message struct {
	To          string
	ToName      string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Transport sends one message and returns the provider message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Template renders the message for a single recipient.
type Template interface {
	Kind() persistence.NotificationKind
	Subject() string
	Render(recipient Recipient) (Message, error)
}

// AuditSink stores the per-recipient outcome log.
type AuditSink interface {
	RecordNotification(ctx context.Context, entry persistence.NotificationLog) error
}

// Outcome is the result of one recipient.
type Outcome struct {
	Recipient Recipient
	Status    persistence.NotificationStatus
	MessageID string
	Error     string
}

// Result summarises a dispatch. SuccessCount+FailureCount always equals TotalCount.
type Result struct {
	SuccessCount int
	FailureCount int
	TotalCount   int
	Outcomes     []Outcome
}

// Succeeded returns the outcomes that were delivered to the transport.
func (r Result) Succeeded() []Outcome {
	out := make([]Outcome, 0, r.SuccessCount)
	for _, o := range r.Outcomes {
		if o.Status == persistence.NotificationStatusSent {
			out = append(out, o)
		}
	}
	return out
}

// Options configures a Dispatcher.
type Options struct {
	MinSpacing  time.Duration
	SendTimeout time.Duration
	Audit       AuditSink
	IDGenerator func() string
	Now         func() time.Time
	// Sleep waits for d or until ctx is done. Tests replace it to drive a fake clock.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Dispatcher sends messages strictly sequentially with a minimum spacing
// between consecutive transport calls.
type Dispatcher struct {
	transport   Transport
	limiter     *rate.Limiter
	spacing     time.Duration
	timeout     time.Duration
	audit       AuditSink
	idGenerator func() string
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// NewDispatcher constructs a dispatcher over transport.
func NewDispatcher(transport Transport, opts Options) *Dispatcher {
	if opts.MinSpacing <= 0 {
		opts.MinSpacing = DefaultMinSpacing
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		transport:   transport,
		limiter:     rate.NewLimiter(rate.Every(opts.MinSpacing), 1),
		spacing:     opts.MinSpacing,
		timeout:     opts.SendTimeout,
		audit:       opts.Audit,
		idGenerator: opts.IDGenerator,
		now:         opts.Now,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
}

// MinSpacing returns the enforced gap between consecutive sends.
func (d *Dispatcher) MinSpacing() time.Duration {
	if d == nil {
		return 0
	}
	return d.spacing
}

// Send dispatches tmpl to every recipient in input order. Invalid addresses are
// counted as failures without reaching the transport. A failing recipient never
// stops the loop; once ctx is done the remaining recipients are counted failed.
// Send never returns an error: delivery problems are reported through Result.
func (d *Dispatcher) Send(ctx context.Context, eventID string, recipients []Recipient, tmpl Template) Result {
	result := Result{TotalCount: len(recipients), Outcomes: make([]Outcome, 0, len(recipients))}
	if d == nil || tmpl == nil {
		for _, r := range recipients {
			result.fail(r, "dispatcher not configured")
		}
		return result
	}

	logger := logging.FromContextOrDefault(ctx, d.logger).With(
		"component", "NotificationDispatcher",
		"event_id", eventID,
		"kind", string(tmpl.Kind()),
	)

	for _, recipient := range recipients {
		outcome := d.deliver(ctx, recipient, tmpl)
		result.add(outcome)
		d.record(ctx, logger, eventID, tmpl, outcome)
	}

	logger.InfoContext(ctx, "dispatch completed",
		"success_count", result.SuccessCount,
		"failure_count", result.FailureCount,
		"total_count", result.TotalCount,
	)
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, recipient Recipient, tmpl Template) Outcome {
	if !ValidAddress(recipient.Email) {
		return failed(recipient, ReasonInvalidFormat)
	}
	if err := ctx.Err(); err != nil {
		return failed(recipient, err.Error())
	}
	if err := d.pace(ctx); err != nil {
		return failed(recipient, err.Error())
	}

	msg, err := tmpl.Render(recipient)
	if err != nil {
		return failed(recipient, fmt.Sprintf("render: %v", err))
	}
	msg.To = strings.TrimSpace(recipient.Email)
	if msg.ToName == "" {
		msg.ToName = recipient.Name
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	messageID, err := d.transport.Send(sendCtx, msg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return failed(recipient, fmt.Sprintf("send timed out after %s", d.timeout))
		}
		return failed(recipient, err.Error())
	}
	return Outcome{Recipient: recipient, Status: persistence.NotificationStatusSent, MessageID: messageID}
}

// pace reserves the next send slot and waits until it opens.
func (d *Dispatcher) pace(ctx context.Context) error {
	now := d.now()
	reservation := d.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return fmt.Errorf("rate limiter rejected reservation")
	}
	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := d.sleep(ctx, delay); err != nil {
		reservation.CancelAt(d.now())
		return err
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, logger *slog.Logger, eventID string, tmpl Template, outcome Outcome) {
	if outcome.Status == persistence.NotificationStatusSent {
		logger.InfoContext(ctx, "notification sent",
			"recipient", outcome.Recipient.Email,
			"status", string(outcome.Status),
			"message_id", outcome.MessageID,
		)
	} else {
		logger.WarnContext(ctx, "notification failed",
			"recipient", outcome.Recipient.Email,
			"status", string(outcome.Status),
			"error", outcome.Error,
		)
	}

	if d.audit == nil {
		return
	}
	entry := persistence.NotificationLog{
		ID:             d.idGenerator(),
		EventID:        eventID,
		Kind:           tmpl.Kind(),
		RecipientEmail: outcome.Recipient.Email,
		RecipientName:  outcome.Recipient.Name,
		Subject:        tmpl.Subject(),
		Status:         outcome.Status,
		MessageID:      outcome.MessageID,
		Error:          outcome.Error,
		CreatedAt:      d.now(),
	}
	// The audit write outlives a cancelled dispatch so the failure is still recorded.
	if err := d.audit.RecordNotification(context.WithoutCancel(ctx), entry); err != nil {
		logger.ErrorContext(ctx, "failed to record notification", "recipient", outcome.Recipient.Email, "error", err)
	}
}

func (r *Result) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Status == persistence.NotificationStatusSent {
		r.SuccessCount++
		return
	}
	r.FailureCount++
}

func (r *Result) fail(recipient Recipient, reason string) {
	r.add(failed(recipient, reason))
}

func failed(recipient Recipient, reason string) Outcome {
	return Outcome{Recipient: recipient, Status: persistence.NotificationStatusFailed, Error: reason}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
