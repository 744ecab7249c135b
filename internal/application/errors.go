package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/event-booking/internal/persistence"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrNotFoundOrNotScheduled is returned when an operation targets an event
	// that does not exist or has been cancelled.
	ErrNotFoundOrNotScheduled = errors.New("application: event not found or not scheduled")
	// ErrAlreadyExists is returned when a unique resource is created twice.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrSweepInProgress is returned when a reminder sweep is requested while
	// another one is still running.
	ErrSweepInProgress = errors.New("application: reminder sweep already in progress")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ConflictError reports the scheduled events that overlap a requested range.
// Nothing is written when it is returned.
type ConflictError struct {
	Conflicts []persistence.Event
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil || len(c.Conflicts) == 0 {
		return "time slot conflicts with an existing event"
	}
	msg := fmt.Sprintf("time slot conflicts with existing event %q", c.Conflicts[0].Title)
	if extra := len(c.Conflicts) - 1; extra > 0 {
		msg += fmt.Sprintf(" and %d more", extra)
	}
	return msg
}
