package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/event-booking/internal/notification"
)

// ErrMailboxUnavailable is returned for addresses configured to fail.
var ErrMailboxUnavailable = errors.New("550 mailbox unavailable")

// Delivery is one message handed to a RecordingTransport.
type Delivery struct {
	Message notification.Message
	At      time.Time
	Err     error
}

// RecordingTransport is a notification.Transport that keeps every message
// together with the time it was sent.
type RecordingTransport struct {
	now func() time.Time

	mu         sync.Mutex
	failFor    map[string]bool
	deliveries []Delivery
}

// NewRecordingTransport records send times from now. A nil now uses time.Now.
func NewRecordingTransport(now func() time.Time) *RecordingTransport {
	if now == nil {
		now = time.Now
	}
	return &RecordingTransport{now: now, failFor: map[string]bool{}}
}

// FailFor makes sends to the given addresses fail with ErrMailboxUnavailable.
func (t *RecordingTransport) FailFor(addresses ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, address := range addresses {
		t.failFor[strings.ToLower(address)] = true
	}
}

func (t *RecordingTransport) Send(ctx context.Context, msg notification.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delivery := Delivery{Message: msg, At: t.now()}
	if t.failFor[strings.ToLower(msg.To)] {
		delivery.Err = ErrMailboxUnavailable
	}
	t.deliveries = append(t.deliveries, delivery)
	if delivery.Err != nil {
		return "", delivery.Err
	}
	return fmt.Sprintf("<%d@testfixtures>", len(t.deliveries)), nil
}

// Deliveries returns a copy of everything sent so far.
func (t *RecordingTransport) Deliveries() []Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Delivery, len(t.deliveries))
	copy(out, t.deliveries)
	return out
}

// SentTo returns the subjects delivered successfully to address, in order.
func (t *RecordingTransport) SentTo(address string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var subjects []string
	for _, d := range t.deliveries {
		if d.Err == nil && strings.EqualFold(d.Message.To, address) {
			subjects = append(subjects, d.Message.Subject)
		}
	}
	return subjects
}
