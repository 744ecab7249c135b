package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/example/event-booking/internal/application"
	"github.com/example/event-booking/internal/config"
	httptransport "github.com/example/event-booking/internal/http"
	"github.com/example/event-booking/internal/jobs"
	"github.com/example/event-booking/internal/logging"
	"github.com/example/event-booking/internal/notification"
	"github.com/example/event-booking/internal/notification/mailer"
	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/persistence/memory"
	"github.com/example/event-booking/internal/persistence/postgres"
	"github.com/example/event-booking/internal/persistence/sqlite"
	"github.com/example/event-booking/internal/scheduler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		slog.Error("scheduler failed", "error", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "scheduler",
		Usage:     "Book events, send invitations and deliver reminders.",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML, TOML or JSON configuration file.",
				EnvVars: []string{"SCHEDULER_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			sweepCommand(),
			migrateCommand(),
			recipientsCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API together with the reminder sweeper.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-sweeper", Usage: "Serve the API without running scheduled sweeps."},
		},
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer rt.close()

			router := httptransport.NewRouter(httptransport.RouterConfig{
				Events:    httptransport.NewEventHandler(rt.booking, rt.logger),
				Reminders: httptransport.NewReminderHandler(rt.sweeper, rt.logger),
				Health:    httptransport.NewHealthHandler(rt.store, rt.logger),
				Logger:    rt.logger,
				BodyLimit: "1M",
			})

			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", rt.cfg.HTTPPort),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			g, ctx := errgroup.WithContext(c.Context)

			g.Go(func() error {
				rt.logger.Info("scheduler API listening", "addr", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown http server: %w", err)
				}
				return nil
			})

			if !c.Bool("no-sweeper") {
				runner, err := newSweepRunner(rt)
				if err != nil {
					return err
				}
				g.Go(func() error { return runner.Run(ctx) })
			}

			return g.Wait()
		},
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Send due reminders.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run a single sweep and exit instead of following the schedule."},
		},
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer rt.close()

			if !c.Bool("once") {
				runner, err := newSweepRunner(rt)
				if err != nil {
					return err
				}
				return runner.Run(c.Context)
			}

			report, err := rt.sweeper.Sweep(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "due=%d processed=%d skipped=%d errors=%d emails_sent=%d emails_failed=%d deadline_reached=%t\n",
				report.Due, report.Processed, report.SkippedInactive, report.Errors,
				report.EmailsSent, report.EmailsFailed, report.DeadlineReached)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations and exit.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, err := openStore(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintf(c.App.Writer, "%s schema is up to date\n", cfg.StoreDriver)
			return nil
		},
	}
}

func recipientsCommand() *cli.Command {
	return &cli.Command{
		Name:  "recipients",
		Usage: "Manage the internal recipient directory.",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a recipient who is invited to every event.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true, Usage: "Email address."},
					&cli.StringFlag{Name: "name", Usage: "Display name."},
					&cli.BoolFlag{Name: "no-email", Usage: "Add the recipient with email notifications disabled."},
				},
				Action: func(c *cli.Context) error {
					rt, err := bootstrap(c)
					if err != nil {
						return err
					}
					defer rt.close()

					notify := !c.Bool("no-email")
					recipient, err := rt.booking.CreateRecipient(c.Context, application.RecipientInput{
						Email:              c.String("email"),
						DisplayName:        c.String("name"),
						EmailNotifications: &notify,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "added recipient %s <%s>\n", recipient.ID, recipient.Email)
					return nil
				},
			},
		},
	}
}

// wiring holds the wired services of one command invocation.
type wiring struct {
	cfg     config.Config
	logger  *slog.Logger
	store   persistence.Store
	redis   redis.UniversalClient
	booking *application.BookingService
	sweeper *application.ReminderSweeper
}

func (rt *wiring) close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Error("failed to close redis client", "error", err)
		}
	}
	if err := rt.store.Close(); err != nil {
		rt.logger.Error("failed to close store", "error", err)
	}
}

func loadConfig(c *cli.Context) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, c.App.ErrWriter)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func bootstrap(c *cli.Context) (*wiring, error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	store, err := openStore(c.Context, cfg, logger)
	if err != nil {
		return nil, err
	}

	transport, err := newTransport(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	dispatcher := notification.NewDispatcher(transport, notification.Options{
		MinSpacing:  cfg.DispatchMinSpacing,
		SendTimeout: cfg.DispatchSendTimeout,
		Audit:       store,
		IDGenerator: uuid.NewString,
		Logger:      logger,
	})
	planner := scheduler.NewReminderPlanner(cfg.ReminderOffsets, time.Now)

	rt := &wiring{
		cfg:    cfg,
		logger: logger,
		store:  store,
		booking: application.NewBookingService(application.BookingServiceConfig{
			Store:           store,
			Dispatcher:      dispatcher,
			Planner:         planner,
			Organizer:       notification.Organizer{Email: cfg.MailFrom, Name: cfg.MailFromName},
			AvailabilityTTL: cfg.AvailabilityCacheTTL,
			IDGenerator:     uuid.NewString,
			Logger:          logger,
		}),
		sweeper: application.NewReminderSweeper(application.ReminderSweeperConfig{
			Store:       store,
			Dispatcher:  dispatcher,
			PrimaryKind: planner.PrimaryKind(),
			Deadline:    cfg.SweepDeadline,
			Schedule:    cfg.SweepSchedule,
			Logger:      logger,
		}),
	}

	if cfg.RedisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return rt, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		store, err := postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN}, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	default:
		store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	}
}

func newTransport(cfg config.Config, logger *slog.Logger) (notification.Transport, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("smtp_host not set; notifications are logged instead of sent")
		return mailer.NewLogTransport(logger), nil
	}
	transport, err := mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
		Timeout:  cfg.DispatchSendTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("configure smtp transport: %w", err)
	}
	return transport, nil
}

type sweepRunner interface {
	Run(ctx context.Context) error
}

// newSweepRunner picks the runner for the configured sweep mode. When Redis
// is configured the sweep also takes a cross-instance lock.
func newSweepRunner(rt *wiring) (sweepRunner, error) {
	var lock jobs.Locker
	if rt.redis != nil {
		redisLock, err := jobs.NewRedisLock(rt.redis, jobs.DefaultLockKey, rt.cfg.SweepDeadline+time.Minute, rt.logger)
		if err != nil {
			return nil, err
		}
		lock = redisLock
	}

	if rt.cfg.SweepMode == config.SweepModeAsynq {
		return jobs.NewAsynqWorker(rt.sweeper, jobs.AsynqOptions{
			Redis: asynq.RedisClientOpt{
				Addr:     rt.cfg.RedisAddr,
				Password: rt.cfg.RedisPassword,
				DB:       rt.cfg.RedisDB,
			},
			Schedule: rt.cfg.SweepSchedule,
			Deadline: rt.cfg.SweepDeadline,
			Lock:     lock,
			Logger:   rt.logger,
		})
	}

	return jobs.NewCronRunner(rt.sweeper, jobs.CronOptions{
		Schedule:   rt.cfg.SweepSchedule,
		RunOnStart: true,
		Lock:       lock,
		Logger:     rt.logger,
	})
}
