// Package sqlstore implements persistence.Store on top of sqlx for any SQL
// dialect that supplies a Dialect.
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/event-booking/internal/persistence"
)

// Dialect captures the driver specific behaviour the shared store relies on.
type Dialect struct {
	// Name is the database/sql driver name, used for placeholder rebinding.
	Name string
	// TxOptions are applied to every WithinTx transaction.
	TxOptions *sql.TxOptions
	// TimeValue converts a timestamp into a driver argument.
	TimeValue func(time.Time) any
	// MapError maps driver errors onto persistence sentinels. It must keep the
	// original error in the chain.
	MapError func(error) error
	// Retryable reports whether a failed transaction may be retried.
	Retryable func(error) bool
}

func (d Dialect) timeArg(t time.Time) any {
	if d.TimeValue == nil {
		return t.UTC()
	}
	return d.TimeValue(t)
}

func (d Dialect) nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.timeArg(*t)
}

func (d Dialect) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	if d.MapError != nil {
		return d.MapError(err)
	}
	return err
}

func (d Dialect) retryable(err error) bool {
	if err == nil || d.Retryable == nil {
		return false
	}
	return d.Retryable(err)
}

// TextTimeLayout is a fixed width UTC layout, so text columns compare in
// chronological order.
const TextTimeLayout = "2006-01-02T15:04:05.000000000Z"

// TextTime formats t with TextTimeLayout.
func TextTime(t time.Time) any {
	return t.UTC().Format(TextTimeLayout)
}

var timeLayouts = []string{
	TextTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("sqlstore: unrecognised timestamp %q", value)
}

// ContainsAny reports whether s contains any of substrings.
func ContainsAny(s string, substrings ...string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
