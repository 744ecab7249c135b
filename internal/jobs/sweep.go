// Package jobs runs the reminder sweep in the background.
//
// Two runners are available. CronRunner triggers sweeps in process on a cron
// schedule. AsynqWorker registers a periodic reminders:sweep task in Redis so
// that only one replica of a deployment sweeps per tick. Either runner can be
// combined with a RedisLock to keep concurrent sweeps on different hosts apart.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/event-booking/internal/application"
)

// Sweeper is the part of the reminder sweeper the runners drive.
type Sweeper interface {
	Sweep(ctx context.Context) (application.SweepReport, error)
	SetNextRun(next func() (time.Time, bool))
}

// Locker guards a sweep across processes. Acquire reports false when another
// holder owns the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

// ErrLockHeld reports that another instance is sweeping.
var ErrLockHeld = errors.New("sweep lock held by another instance")

// runSweep performs one guarded sweep. Overlaps are reported as
// application.ErrSweepInProgress or ErrLockHeld so callers can treat them as skips.
func runSweep(ctx context.Context, sweeper Sweeper, lock Locker, logger *slog.Logger) (application.SweepReport, error) {
	if lock != nil {
		release, acquired, err := lock.Acquire(ctx)
		if err != nil {
			return application.SweepReport{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !acquired {
			return application.SweepReport{}, ErrLockHeld
		}
		defer release()
	}

	report, err := sweeper.Sweep(ctx)
	if err != nil {
		return report, err
	}
	if report.DeadlineReached {
		logger.WarnContext(ctx, "reminder sweep stopped at deadline", "due", report.Due, "processed", report.Processed)
	}
	return report, nil
}

func isSkip(err error) bool {
	return errors.Is(err, application.ErrSweepInProgress) || errors.Is(err, ErrLockHeld)
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
