package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeSweep identifies the periodic reminder sweep task.
const TaskTypeSweep = "reminders:sweep"

// AsynqOptions configures an AsynqWorker.
type AsynqOptions struct {
	Redis    asynq.RedisConnOpt
	Schedule string
	// Deadline bounds one sweep; it also sizes the task timeout and uniqueness window.
	Deadline time.Duration
	Lock     Locker
	Logger   *slog.Logger
}

// AsynqWorker enqueues the sweep task on a schedule and processes it. Every
// replica may run a worker: the task is unique per window, so one replica
// sweeps per tick.
type AsynqWorker struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
	logger    *slog.Logger
}

// NewSweepTask builds the sweep task with its uniqueness and retry options.
func NewSweepTask(deadline time.Duration) *asynq.Task {
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	return asynq.NewTask(TaskTypeSweep, nil,
		asynq.MaxRetry(0),
		asynq.Timeout(deadline+time.Minute),
		asynq.Unique(deadline),
	)
}

// NewSweepHandler returns the task handler that runs one sweep. Overlapping
// sweeps are dropped without retry; the next tick picks up what is left.
func NewSweepHandler(sweeper Sweeper, lock Locker, logger *slog.Logger) asynq.Handler {
	logger = defaultLogger(logger).With("component", "asynq_worker")
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		_, err := runSweep(ctx, sweeper, lock, logger)
		switch {
		case err == nil:
			return nil
		case isSkip(err):
			logger.InfoContext(ctx, "reminder sweep skipped", "reason", err.Error(), "task", task.Type())
			return nil
		default:
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
	})
}

// NewAsynqWorker wires the periodic scheduler and a single concurrency server.
func NewAsynqWorker(sweeper Sweeper, opts AsynqOptions) (*AsynqWorker, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is nil")
	}
	if opts.Redis == nil {
		return nil, fmt.Errorf("redis connection is not configured")
	}
	logger := defaultLogger(opts.Logger).With("component", "asynq_worker")
	bridge := asynqLogger{logger: logger}

	scheduler := asynq.NewScheduler(opts.Redis, &asynq.SchedulerOpts{
		Logger:   bridge,
		Location: time.UTC,
	})
	if _, err := scheduler.Register(opts.Schedule, NewSweepTask(opts.Deadline)); err != nil {
		return nil, fmt.Errorf("register sweep task %q: %w", opts.Schedule, err)
	}

	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeSweep, NewSweepHandler(sweeper, opts.Lock, logger))

	server := asynq.NewServer(opts.Redis, asynq.Config{
		Concurrency: 1,
		Logger:      bridge,
		LogLevel:    asynq.InfoLevel,
	})

	return &AsynqWorker{scheduler: scheduler, server: server, mux: mux, logger: logger}, nil
}

// Run starts the scheduler and the server and blocks until ctx is done.
func (w *AsynqWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return fmt.Errorf("start asynq scheduler: %w", err)
	}
	w.logger.InfoContext(ctx, "reminder sweep worker started")

	<-ctx.Done()
	w.scheduler.Shutdown()
	w.server.Shutdown()
	w.logger.Info("reminder sweep worker stopped")
	return nil
}

// asynqLogger adapts slog to asynq.Logger.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}

var _ asynq.Logger = asynqLogger{}
