package scheduler

import (
	"fmt"
	"sort"
	"time"
)

// ReminderOffset names how long before an event's start a reminder fires.
type ReminderOffset struct {
	Kind   string
	Before time.Duration
}

// DefaultReminderOffsets are the 24 hour (primary) and 1 hour reminders.
var DefaultReminderOffsets = []ReminderOffset{
	{Kind: "24_hours", Before: 24 * time.Hour},
	{Kind: "1_hour", Before: time.Hour},
}

// PlannedReminder is a reminder instant computed for an event.
type PlannedReminder struct {
	Kind  string
	DueAt time.Time
}

// ReminderPlanner computes reminder instants that still lie in the future.
type ReminderPlanner struct {
	offsets []ReminderOffset
	now     func() time.Time
}

// NewReminderPlanner builds a planner. Offsets are ordered largest first so
// the first entry is the primary reminder. Nil or empty offsets fall back to
// DefaultReminderOffsets. Repeated durations keep their first entry.
func NewReminderPlanner(offsets []ReminderOffset, now func() time.Time) *ReminderPlanner {
	if len(offsets) == 0 {
		offsets = DefaultReminderOffsets
	}
	if now == nil {
		now = time.Now
	}
	ordered := make([]ReminderOffset, 0, len(offsets))
	seen := make(map[time.Duration]struct{}, len(offsets))
	for _, offset := range offsets {
		if offset.Before <= 0 {
			continue
		}
		if _, dup := seen[offset.Before]; dup {
			continue
		}
		seen[offset.Before] = struct{}{}
		if offset.Kind == "" {
			offset.Kind = KindForOffset(offset.Before)
		}
		ordered = append(ordered, offset)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before > ordered[j].Before })
	return &ReminderPlanner{offsets: ordered, now: now}
}

// Plan returns one reminder per offset whose due time is strictly after now.
// An event starting within the smallest offset gets no reminder for it.
func (p *ReminderPlanner) Plan(start time.Time) []PlannedReminder {
	if p == nil || start.IsZero() {
		return nil
	}
	now := p.now()
	planned := make([]PlannedReminder, 0, len(p.offsets))
	for _, offset := range p.offsets {
		dueAt := start.Add(-offset.Before)
		if !dueAt.After(now) {
			continue
		}
		planned = append(planned, PlannedReminder{Kind: offset.Kind, DueAt: dueAt})
	}
	return planned
}

// PrimaryKind is the kind of the largest offset; sending it marks the event as reminded.
func (p *ReminderPlanner) PrimaryKind() string {
	if p == nil || len(p.offsets) == 0 {
		return ""
	}
	return p.offsets[0].Kind
}

// Offsets returns a copy of the configured offsets, largest first.
func (p *ReminderPlanner) Offsets() []ReminderOffset {
	if p == nil {
		return nil
	}
	return append([]ReminderOffset(nil), p.offsets...)
}

// KindForOffset renders an offset as a reminder kind label such as
// "24_hours", "1_hour" or "30_minutes".
func KindForOffset(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return pluralKind(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return pluralKind(int(d/time.Minute), "minute")
	default:
		return pluralKind(int(d/time.Second), "second")
	}
}

func pluralKind(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1_%s", unit)
	}
	return fmt.Sprintf("%d_%ss", n, unit)
}

// ParseReminderOffsets parses durations such as "24h", "1h" or "30m".
// Values naming the same duration ("1h", "60m") collapse into one offset.
func ParseReminderOffsets(values []string) ([]ReminderOffset, error) {
	offsets := make([]ReminderOffset, 0, len(values))
	seen := make(map[time.Duration]struct{}, len(values))
	for _, value := range values {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("parse reminder offset %q: %w", value, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("reminder offset %q must be positive", value)
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		offsets = append(offsets, ReminderOffset{Kind: KindForOffset(d), Before: d})
	}
	return offsets, nil
}
