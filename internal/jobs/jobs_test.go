package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/example/event-booking/internal/application"
)

type fakeSweeper struct {
	calls  atomic.Int32
	err    error
	called chan struct{}

	mu   sync.Mutex
	next func() (time.Time, bool)
}

func newFakeSweeper() *fakeSweeper {
	return &fakeSweeper{called: make(chan struct{}, 16)}
}

func (f *fakeSweeper) Sweep(context.Context) (application.SweepReport, error) {
	f.calls.Add(1)
	f.called <- struct{}{}
	return application.SweepReport{Due: 1, Processed: 1}, f.err
}

func (f *fakeSweeper) SetNextRun(next func() (time.Time, bool)) {
	f.mu.Lock()
	f.next = next
	f.mu.Unlock()
}

type fakeLock struct {
	acquired bool
	err      error
	released atomic.Int32
}

func (l *fakeLock) Acquire(context.Context) (func(), bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func() { l.released.Add(1) }, true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSweep(t *testing.T) {
	t.Parallel()

	t.Run("releases the lock after sweeping", func(t *testing.T) {
		t.Parallel()
		sweeper := newFakeSweeper()
		lock := &fakeLock{acquired: true}

		report, err := runSweep(context.Background(), sweeper, lock, discardLogger())
		if err != nil {
			t.Fatalf("runSweep returned error: %v", err)
		}
		if report.Processed != 1 || sweeper.calls.Load() != 1 || lock.released.Load() != 1 {
			t.Fatalf("unexpected state: report=%+v calls=%d released=%d", report, sweeper.calls.Load(), lock.released.Load())
		}
	})

	t.Run("skips when the lock is held elsewhere", func(t *testing.T) {
		t.Parallel()
		sweeper := newFakeSweeper()

		_, err := runSweep(context.Background(), sweeper, &fakeLock{}, discardLogger())
		if !errors.Is(err, ErrLockHeld) || !isSkip(err) {
			t.Fatalf("expected ErrLockHeld, got %v", err)
		}
		if sweeper.calls.Load() != 0 {
			t.Fatalf("sweeper must not run without the lock")
		}
	})

	t.Run("reports lock errors", func(t *testing.T) {
		t.Parallel()
		lockErr := errors.New("connection refused")

		_, err := runSweep(context.Background(), newFakeSweeper(), &fakeLock{err: lockErr}, discardLogger())
		if !errors.Is(err, lockErr) || isSkip(err) {
			t.Fatalf("expected wrapped lock error, got %v", err)
		}
	})

	t.Run("treats overlapping sweeps as skips", func(t *testing.T) {
		t.Parallel()
		sweeper := newFakeSweeper()
		sweeper.err = application.ErrSweepInProgress

		_, err := runSweep(context.Background(), sweeper, nil, discardLogger())
		if !isSkip(err) {
			t.Fatalf("expected skip, got %v", err)
		}
	})
}

func TestCronRunner_RejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	if _, err := NewCronRunner(newFakeSweeper(), CronOptions{Schedule: "whenever", Logger: discardLogger()}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if _, err := NewCronRunner(nil, CronOptions{Schedule: "@every 5m"}); err == nil {
		t.Fatal("expected error for nil sweeper")
	}
}

func TestCronRunner_RunOnStartAndStop(t *testing.T) {
	t.Parallel()

	sweeper := newFakeSweeper()
	runner, err := NewCronRunner(sweeper, CronOptions{
		Schedule:   "@every 1h",
		RunOnStart: true,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewCronRunner returned error: %v", err)
	}

	sweeper.mu.Lock()
	next := sweeper.next
	sweeper.mu.Unlock()
	if next == nil {
		t.Fatal("expected runner to register its next run source")
	}
	if _, ok := next(); ok {
		t.Fatal("expected no next run before the schedule starts")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-sweeper.called:
	case <-time.After(5 * time.Second):
		t.Fatal("expected an initial sweep")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if at, ok := next(); ok {
			if !at.After(time.Now()) {
				t.Fatalf("expected next run in the future, got %s", at)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected next run once the schedule started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestSweepHandler(t *testing.T) {
	t.Parallel()

	task := NewSweepTask(time.Minute)
	if task.Type() != TaskTypeSweep {
		t.Fatalf("unexpected task type %q", task.Type())
	}

	t.Run("runs a sweep", func(t *testing.T) {
		t.Parallel()
		sweeper := newFakeSweeper()
		if err := NewSweepHandler(sweeper, nil, discardLogger()).ProcessTask(context.Background(), task); err != nil {
			t.Fatalf("ProcessTask returned error: %v", err)
		}
		if sweeper.calls.Load() != 1 {
			t.Fatalf("expected one sweep, got %d", sweeper.calls.Load())
		}
	})

	t.Run("drops overlapping sweeps", func(t *testing.T) {
		t.Parallel()
		sweeper := newFakeSweeper()
		sweeper.err = application.ErrSweepInProgress
		if err := NewSweepHandler(sweeper, nil, discardLogger()).ProcessTask(context.Background(), task); err != nil {
			t.Fatalf("expected overlap to be dropped, got %v", err)
		}
	})

	t.Run("does not retry failures", func(t *testing.T) {
		t.Parallel()
		sweeper := newFakeSweeper()
		sweeper.err = errors.New("database is locked")
		err := NewSweepHandler(sweeper, nil, discardLogger()).ProcessTask(context.Background(), task)
		if !errors.Is(err, asynq.SkipRetry) || !errors.Is(err, sweeper.err) {
			t.Fatalf("expected SkipRetry wrapping the failure, got %v", err)
		}
	})
}

func TestNewAsynqWorkerValidatesInput(t *testing.T) {
	t.Parallel()

	if _, err := NewAsynqWorker(newFakeSweeper(), AsynqOptions{Schedule: "@every 5m"}); err == nil {
		t.Fatal("expected error without redis connection")
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRedisLock(t *testing.T) {
	t.Parallel()

	t.Run("excludes a second holder until released", func(t *testing.T) {
		t.Parallel()

		server, client := newTestRedis(t)
		ctx := context.Background()

		first, err := NewRedisLock(client, "", time.Minute, discardLogger())
		if err != nil {
			t.Fatalf("NewRedisLock returned error: %v", err)
		}
		second, _ := NewRedisLock(client, "", time.Minute, discardLogger())

		release, ok, err := first.Acquire(ctx)
		if err != nil || !ok {
			t.Fatalf("expected first acquire to succeed, got %v %v", ok, err)
		}
		if _, ok, err := second.Acquire(ctx); err != nil || ok {
			t.Fatalf("expected second acquire to fail while held, got %v %v", ok, err)
		}

		release()
		release()
		if server.Exists(DefaultLockKey) {
			t.Fatal("expected key to be deleted on release")
		}

		release2, ok, err := second.Acquire(ctx)
		if err != nil || !ok {
			t.Fatalf("expected acquire after release to succeed, got %v %v", ok, err)
		}
		release2()
	})

	t.Run("renews the lease while held", func(t *testing.T) {
		t.Parallel()

		server, client := newTestRedis(t)
		lock, err := NewRedisLock(client, "", 300*time.Millisecond, discardLogger())
		if err != nil {
			t.Fatalf("NewRedisLock returned error: %v", err)
		}

		release, ok, err := lock.Acquire(context.Background())
		if err != nil || !ok {
			t.Fatalf("expected acquire to succeed, got %v %v", ok, err)
		}

		// Each round lets the renewal tick run, then advances Redis time by
		// two thirds of the ttl. Without renewal the key expires in round two.
		for round := 0; round < 5; round++ {
			time.Sleep(150 * time.Millisecond)
			server.FastForward(200 * time.Millisecond)
			if !server.Exists(DefaultLockKey) {
				t.Fatalf("lease expired while held in round %d", round)
			}
		}

		release()
		server.FastForward(time.Second)
		if server.Exists(DefaultLockKey) {
			t.Fatal("expected no renewal after release")
		}
	})

	t.Run("leaves a lease taken over by another holder", func(t *testing.T) {
		t.Parallel()

		server, client := newTestRedis(t)
		lock, _ := NewRedisLock(client, "", time.Minute, discardLogger())

		release, ok, err := lock.Acquire(context.Background())
		if err != nil || !ok {
			t.Fatalf("expected acquire to succeed, got %v %v", ok, err)
		}
		if err := server.Set(DefaultLockKey, "other-instance"); err != nil {
			t.Fatalf("failed to overwrite key: %v", err)
		}

		release()
		if got, _ := server.Get(DefaultLockKey); got != "other-instance" {
			t.Fatalf("expected foreign lease to survive release, got %q", got)
		}
	})
}

func TestNewRedisLockValidatesInput(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisLock(nil, "", time.Minute, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	if _, err := NewRedisLock(client, "", 0, nil); err == nil {
		t.Fatal("expected error for zero ttl")
	}
	lock, err := NewRedisLock(client, "", time.Minute, nil)
	if err != nil || lock.key != DefaultLockKey {
		t.Fatalf("expected default key, got %+v %v", lock, err)
	}
}
