package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/event-booking/internal/application"
	"github.com/example/event-booking/internal/notification"
	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/scheduler"
)

// ServiceFactory assists tests with constructing the booking engine using
// deterministic identifiers, a controllable clock and a recording transport.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Transport   *RecordingTransport
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Transport == nil {
		factory.Transport = NewRecordingTransport(factory.Clock.Now)
	}
	if factory.Logger == nil {
		factory.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger routes service logs to logger instead of discarding them.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewDispatcher builds a dispatcher over the recording transport that audits
// into store. Pacing sleeps advance the factory clock.
func (f *ServiceFactory) NewDispatcher(store persistence.Store) *notification.Dispatcher {
	return notification.NewDispatcher(f.Transport, notification.Options{
		MinSpacing:  notification.DefaultMinSpacing,
		SendTimeout: time.Second,
		Audit:       store,
		IDGenerator: f.IDGenerator.Next,
		Now:         f.Clock.Now,
		Sleep:       f.Clock.Sleep,
		Logger:      f.Logger,
	})
}

// Engine bundles the services sharing one store and dispatcher.
type Engine struct {
	Store      persistence.Store
	Dispatcher *notification.Dispatcher
	Booking    *application.BookingService
	Sweeper    *application.ReminderSweeper
}

// NewEngine wires a booking service and a reminder sweeper over store with
// the default reminder offsets.
func (f *ServiceFactory) NewEngine(store persistence.Store) Engine {
	dispatcher := f.NewDispatcher(store)
	planner := scheduler.NewReminderPlanner(nil, f.Clock.Now)

	return Engine{
		Store:      store,
		Dispatcher: dispatcher,
		Booking: application.NewBookingService(application.BookingServiceConfig{
			Store:           store,
			Dispatcher:      dispatcher,
			Planner:         planner,
			Organizer:       notification.Organizer{Email: "scheduler@example.com", Name: "Scheduler"},
			AvailabilityTTL: time.Minute,
			IDGenerator:     f.IDGenerator.Next,
			Now:             f.Clock.Now,
			Logger:          f.Logger,
		}),
		Sweeper: application.NewReminderSweeper(application.ReminderSweeperConfig{
			Store:       store,
			Dispatcher:  dispatcher,
			PrimaryKind: planner.PrimaryKind(),
			Deadline:    4 * time.Minute,
			Schedule:    "@every 5m",
			Now:         f.Clock.Now,
			Logger:      f.Logger,
		}),
	}
}
