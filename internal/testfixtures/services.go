package testfixtures

import (
	"time"

	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
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
		factory.IDGenerator = NewIDGenerator("schedule")
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

// AvailabilityServiceDeps captures dependencies for constructing an availability service.
type AvailabilityServiceDeps struct {
	Schedules    application.ScheduleRepository
	Locker       application.UserLocker
	Logger       *zap.Logger
	MaxRangeDays int
}

// NewAvailabilityService wires an AvailabilityService with the factory's
// clock and id generator. A zero MaxRangeDays keeps the service default.
func (f *ServiceFactory) NewAvailabilityService(deps AvailabilityServiceDeps) *application.AvailabilityService {
	svc := application.NewAvailabilityServiceWithLogger(
		deps.Schedules,
		deps.Locker,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
	if deps.MaxRangeDays != 0 {
		svc.WithMaxRangeDays(deps.MaxRangeDays)
	}
	return svc
}
