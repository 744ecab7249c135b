package scheduler

import (
	"testing"
	"time"
)

func TestReminderPlannerPlan(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		now       time.Time
		wantKinds []string
	}{
		{name: "both offsets in the future", now: start.Add(-48 * time.Hour), wantKinds: []string{"24_hours", "1_hour"}},
		{name: "only the one hour offset left", now: start.Add(-3 * time.Hour), wantKinds: []string{"1_hour"}},
		{name: "due exactly now is dropped", now: start.Add(-time.Hour), wantKinds: nil},
		{name: "event starting soon gets nothing", now: start.Add(-30 * time.Minute), wantKinds: nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			planner := NewReminderPlanner(nil, func() time.Time { return tc.now })
			got := planner.Plan(start)
			if len(got) != len(tc.wantKinds) {
				t.Fatalf("expected %d reminders, got %+v", len(tc.wantKinds), got)
			}
			for i, kind := range tc.wantKinds {
				if got[i].Kind != kind {
					t.Fatalf("reminder %d: expected kind %s, got %s", i, kind, got[i].Kind)
				}
				if !got[i].DueAt.After(tc.now) {
					t.Fatalf("reminder %d due at %s is not after now %s", i, got[i].DueAt, tc.now)
				}
			}
		})
	}
}

func TestReminderPlannerDueAtArithmetic(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	planner := NewReminderPlanner(nil, func() time.Time { return start.Add(-72 * time.Hour) })

	for _, reminder := range planner.Plan(start) {
		var offset time.Duration
		switch reminder.Kind {
		case "24_hours":
			offset = 24 * time.Hour
		case "1_hour":
			offset = time.Hour
		default:
			t.Fatalf("unexpected kind %s", reminder.Kind)
		}
		if !reminder.DueAt.Equal(start.Add(-offset)) {
			t.Fatalf("%s: expected due %s, got %s", reminder.Kind, start.Add(-offset), reminder.DueAt)
		}
	}
}

func TestReminderPlannerOrdersOffsetsLargestFirst(t *testing.T) {
	t.Parallel()

	planner := NewReminderPlanner([]ReminderOffset{
		{Before: 15 * time.Minute},
		{Before: 48 * time.Hour},
		{Before: 0},
	}, nil)

	if got := planner.PrimaryKind(); got != "48_hours" {
		t.Fatalf("expected primary 48_hours, got %s", got)
	}
	offsets := planner.Offsets()
	if len(offsets) != 2 || offsets[1].Kind != "15_minutes" {
		t.Fatalf("unexpected offsets %+v", offsets)
	}
}

func TestParseReminderOffsets(t *testing.T) {
	t.Parallel()

	offsets, err := ParseReminderOffsets([]string{"24h", "1h", "90s"})
	if err != nil {
		t.Fatalf("ParseReminderOffsets returned error: %v", err)
	}
	want := []string{"24_hours", "1_hour", "90_seconds"}
	for i, kind := range want {
		if offsets[i].Kind != kind {
			t.Fatalf("offset %d: expected %s, got %s", i, kind, offsets[i].Kind)
		}
	}

	if _, err := ParseReminderOffsets([]string{"soon"}); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
	if _, err := ParseReminderOffsets([]string{"-1h"}); err == nil {
		t.Fatalf("expected error for negative duration")
	}
}

func TestReminderOffsetsCollapseRepeatedDurations(t *testing.T) {
	t.Parallel()

	offsets, err := ParseReminderOffsets([]string{"1h", "60m", "24h", "3600s"})
	if err != nil {
		t.Fatalf("ParseReminderOffsets returned error: %v", err)
	}
	if len(offsets) != 2 || offsets[0].Kind != "1_hour" || offsets[1].Kind != "24_hours" {
		t.Fatalf("expected one 1_hour and one 24_hours offset, got %+v", offsets)
	}

	now := time.Date(2025, time.January, 9, 8, 0, 0, 0, time.UTC)
	planner := NewReminderPlanner([]ReminderOffset{
		{Kind: "1_hour", Before: time.Hour},
		{Kind: "60_minutes", Before: 60 * time.Minute},
	}, func() time.Time { return now })

	planned := planner.Plan(now.Add(48 * time.Hour))
	if len(planned) != 1 || planned[0].Kind != "1_hour" {
		t.Fatalf("expected a single 1_hour reminder, got %+v", planned)
	}
}
