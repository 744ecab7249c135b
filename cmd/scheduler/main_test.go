package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/testfixtures"
)

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.db")
	t.Setenv("SCHEDULER_CONFIG", "")
	t.Setenv("SCHEDULER_STORE_DRIVER", "sqlite")
	t.Setenv("SCHEDULER_SQLITE_DSN", path)
	t.Setenv("SCHEDULER_SMTP_HOST", "")
	t.Setenv("SCHEDULER_REDIS_ADDR", "")
	t.Setenv("SCHEDULER_SWEEP_MODE", "cron")
	t.Setenv("SCHEDULER_DISPATCH_MIN_SPACING", "1ms")
	t.Setenv("SCHEDULER_LOG_LEVEL", "error")
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).RunContext(context.Background(), append([]string{"scheduler"}, args...))
	return stdout.String(), err
}

func TestMigrateCommand(t *testing.T) {
	path := useSQLite(t)

	out, err := runApp(t, "migrate")
	if err != nil {
		t.Fatalf("migrate returned error: %v", err)
	}
	if !strings.Contains(out, "sqlite schema is up to date") {
		t.Fatalf("unexpected output: %q", out)
	}

	store := testfixtures.NewSQLiteStoreAt(t, path)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("expected migrated database to be usable: %v", err)
	}

	if _, err := runApp(t, "migrate"); err != nil {
		t.Fatalf("second migrate returned error: %v", err)
	}
}

func TestRecipientsAddCommand(t *testing.T) {
	path := useSQLite(t)

	out, err := runApp(t, "recipients", "add", "--email", "ops@example.com", "--name", "Ops")
	if err != nil {
		t.Fatalf("recipients add returned error: %v", err)
	}
	if !strings.Contains(out, "<ops@example.com>") {
		t.Fatalf("unexpected output: %q", out)
	}

	if _, err := runApp(t, "recipients", "add", "--email", "muted@example.com", "--no-email"); err != nil {
		t.Fatalf("recipients add --no-email returned error: %v", err)
	}

	if _, err := runApp(t, "recipients", "add", "--email", "OPS@example.com"); err == nil {
		t.Fatal("expected duplicate email to be rejected")
	}

	if _, err := runApp(t, "recipients", "add"); err == nil {
		t.Fatal("expected missing --email to fail")
	}

	store := testfixtures.NewSQLiteStoreAt(t, path)
	recipients, err := store.ListNotifiableRecipients(context.Background())
	if err != nil {
		t.Fatalf("ListNotifiableRecipients returned error: %v", err)
	}
	if len(recipients) != 1 || recipients[0].Email != "ops@example.com" || recipients[0].DisplayName != "Ops" {
		t.Fatalf("unexpected notifiable recipients: %+v", recipients)
	}
}

func TestSweepOnceCommand(t *testing.T) {
	path := useSQLite(t)

	store := testfixtures.NewSQLiteStoreAt(t, path)
	event := testfixtures.NewEventFixture()
	testfixtures.SeedEvents(t, store, event)
	attendee := persistence.Attendee{
		ID:          "attendee-cli-1",
		EventID:     event.ID,
		Email:       "guest@example.com",
		DisplayName: "Guest",
		CreatedAt:   testfixtures.ReferenceTime(),
	}
	if err := store.CreateAttendees(context.Background(), []persistence.Attendee{attendee}); err != nil {
		t.Fatalf("CreateAttendees returned error: %v", err)
	}
	reminder := persistence.Reminder{
		ID:        "reminder-cli-1",
		EventID:   event.ID,
		Kind:      "24_hours",
		DueAt:     event.Start.Add(-24 * time.Hour),
		CreatedAt: testfixtures.ReferenceTime(),
	}
	if err := store.CreateReminders(context.Background(), []persistence.Reminder{reminder}); err != nil {
		t.Fatalf("CreateReminders returned error: %v", err)
	}

	out, err := runApp(t, "sweep", "--once")
	if err != nil {
		t.Fatalf("sweep --once returned error: %v", err)
	}
	if !strings.Contains(out, "due=1 processed=1") || !strings.Contains(out, "emails_sent=1") {
		t.Fatalf("unexpected sweep report: %q", out)
	}

	reminders, err := store.ListReminders(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("ListReminders returned error: %v", err)
	}
	if len(reminders) != 1 || !reminders[0].Sent {
		t.Fatalf("expected reminder to be marked sent, got %+v", reminders)
	}

	out, err = runApp(t, "sweep", "--once")
	if err != nil {
		t.Fatalf("second sweep returned error: %v", err)
	}
	if !strings.Contains(out, "due=0 processed=0") {
		t.Fatalf("expected nothing due on second sweep, got %q", out)
	}
}

func TestInvalidConfiguration(t *testing.T) {
	useSQLite(t)
	t.Setenv("SCHEDULER_STORE_DRIVER", "mongo")

	if _, err := runApp(t, "migrate"); err == nil || !strings.Contains(err.Error(), "store_driver") {
		t.Fatalf("expected store_driver error, got %v", err)
	}
}
