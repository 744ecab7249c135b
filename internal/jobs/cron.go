package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CronOptions configures a CronRunner.
type CronOptions struct {
	// Schedule is a standard cron expression or descriptor such as "@every 5m".
	Schedule string
	// RunOnStart triggers one sweep as soon as Run is called.
	RunOnStart bool
	Lock       Locker
	Logger     *slog.Logger
}

// CronRunner triggers reminder sweeps on a cron schedule.
type CronRunner struct {
	sweeper    Sweeper
	lock       Locker
	logger     *slog.Logger
	cron       *cron.Cron
	entry      cron.EntryID
	runOnStart bool
	// runCtx is set by Run before the schedule starts.
	runCtx context.Context
}

// NewCronRunner validates the schedule and registers the sweep job.
func NewCronRunner(sweeper Sweeper, opts CronOptions) (*CronRunner, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is nil")
	}
	logger := defaultLogger(opts.Logger).With("component", "cron_runner")
	bridge := cronLogger{logger: logger}

	r := &CronRunner{
		sweeper:    sweeper,
		lock:       opts.Lock,
		logger:     logger,
		runOnStart: opts.RunOnStart,
		cron: cron.New(
			cron.WithLogger(bridge),
			cron.WithChain(cron.Recover(bridge), cron.SkipIfStillRunning(bridge)),
		),
	}

	entry, err := r.cron.AddFunc(opts.Schedule, func() { r.trigger(r.runCtx) })
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", opts.Schedule, err)
	}
	r.entry = entry
	sweeper.SetNextRun(r.Next)
	return r, nil
}

// Next reports when the next scheduled sweep fires. It is false until Run starts.
func (r *CronRunner) Next() (time.Time, bool) {
	next := r.cron.Entry(r.entry).Next
	return next, !next.IsZero()
}

// Run starts the schedule and blocks until ctx is done. Sweeps observe ctx and
// Run waits for one in flight to stop before returning.
func (r *CronRunner) Run(ctx context.Context) error {
	r.runCtx = ctx
	r.cron.Start()
	r.logger.InfoContext(ctx, "reminder sweep schedule started")

	var initial sync.WaitGroup
	if r.runOnStart {
		initial.Add(1)
		go func() {
			defer initial.Done()
			r.trigger(ctx)
		}()
	}

	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	initial.Wait()
	r.logger.Info("reminder sweep schedule stopped")
	return nil
}

func (r *CronRunner) trigger(ctx context.Context) {
	_, err := runSweep(ctx, r.sweeper, r.lock, r.logger)
	switch {
	case err == nil:
	case isSkip(err):
		r.logger.InfoContext(ctx, "reminder sweep skipped", "reason", err.Error())
	default:
		r.logger.ErrorContext(ctx, "scheduled reminder sweep failed", "error", err)
	}
}

// cronLogger routes cron's chatter to slog. Routine scheduling lines go to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
