package application

import (
	"fmt"
	"testing"

	"github.com/example/event-booking/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"title": "title is required", "end": "start must be before end"}}
	if got := withFields.Error(); got != "validation failed: end: start must be before end; title: title is required" {
		t.Fatalf("expected fields in stable order, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestConflictError_Error(t *testing.T) {
	t.Parallel()

	single := &ConflictError{Conflicts: []persistence.Event{{ID: "evt-1", Title: "Board Meeting"}}}
	if got := single.Error(); got != `time slot conflicts with existing event "Board Meeting"` {
		t.Fatalf("unexpected message %q", got)
	}

	multiple := &ConflictError{Conflicts: []persistence.Event{{Title: "A"}, {Title: "B"}, {Title: "C"}}}
	if got := multiple.Error(); got != `time slot conflicts with existing event "A" and 2 more` {
		t.Fatalf("unexpected message %q", got)
	}

	if got := (&ConflictError{}).Error(); got != "time slot conflicts with an existing event" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNotFound, "not_found"},
		{fmt.Errorf("wrap: %w", ErrNotFoundOrNotScheduled), "not_scheduled"},
		{ErrAlreadyExists, "already_exists"},
		{ErrSweepInProgress, "sweep_in_progress"},
		{&ValidationError{FieldErrors: map[string]string{"title": "required"}}, "validation"},
		{fmt.Errorf("create: %w", &ConflictError{}), "conflict"},
		{fmt.Errorf("boom"), "unexpected"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
