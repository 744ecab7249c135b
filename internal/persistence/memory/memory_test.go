package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/persistence/storetest"
)

func TestStorageContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) persistence.Store {
		return New()
	})
}

func TestWithinTxHidesUncommittedWrites(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)
	event := persistence.Event{
		ID:        "event-1",
		Title:     "Planning",
		Category:  persistence.EventCategoryMeeting,
		Start:     start,
		End:       start.Add(time.Hour),
		Status:    persistence.EventStatusScheduled,
		CreatedAt: start,
		UpdatedAt: start,
	}
	errAbort := errors.New("abort")

	for _, tc := range []struct {
		name      string
		result    error
		wantAfter int
	}{
		{name: "rolled back", result: errAbort, wantAfter: 0},
		{name: "committed", result: nil, wantAfter: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := New()
			ctx := context.Background()
			written := make(chan struct{})
			proceed := make(chan struct{})
			done := make(chan error, 1)

			go func() {
				done <- store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
					if err := tx.CreateEvent(ctx, event); err != nil {
						return err
					}
					if _, err := tx.GetEvent(ctx, event.ID); err != nil {
						return err
					}
					close(written)
					<-proceed
					return tc.result
				})
			}()

			<-written
			events, err := store.ListEvents(ctx, persistence.EventFilter{})
			if err != nil {
				t.Fatalf("ListEvents returned error: %v", err)
			}
			if len(events) != 0 {
				t.Fatalf("expected uncommitted event to be invisible, got %+v", events)
			}
			if _, err := store.GetEvent(ctx, event.ID); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected ErrNotFound during transaction, got %v", err)
			}

			close(proceed)
			if err := <-done; !errors.Is(err, tc.result) {
				t.Fatalf("WithinTx returned %v, want %v", err, tc.result)
			}

			events, err = store.ListEvents(ctx, persistence.EventFilter{})
			if err != nil {
				t.Fatalf("ListEvents returned error: %v", err)
			}
			if len(events) != tc.wantAfter {
				t.Fatalf("expected %d events after transaction, got %d", tc.wantAfter, len(events))
			}
		})
	}
}
