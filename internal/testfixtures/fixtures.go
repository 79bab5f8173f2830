package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/delivery-availability/internal/application"
	"github.com/example/delivery-availability/internal/availability"
	"github.com/example/delivery-availability/internal/persistence"
)

var scheduleCounter uint64

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ScheduleFixture is a deterministic availability schedule that can be
// materialised for application or persistence tests. By default the
// courier works Monday to Friday, 09:00-17:00, with no overrides.
type ScheduleFixture struct {
	ID        string
	UserID    string
	Weekly    map[availability.DayOfWeek]availability.DaySchedule
	Overrides map[availability.Date]availability.DaySchedule
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleOption configures the generated schedule fixture.
type ScheduleOption func(*ScheduleFixture)

// NewScheduleFixture returns a deterministic schedule fixture with optional overrides.
func NewScheduleFixture(opts ...ScheduleOption) ScheduleFixture {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := ScheduleFixture{
		ID:        fmt.Sprintf("schedule-%03d", idx),
		UserID:    fmt.Sprintf("courier-%03d", idx),
		Weekly:    make(map[availability.DayOfWeek]availability.DaySchedule, len(availability.Week)),
		Overrides: make(map[availability.Date]availability.DaySchedule),
		CreatedAt: created,
		UpdatedAt: created,
	}
	office := availability.WorkingBetween(Clock24(9, 0), Clock24(17, 0))
	for _, day := range availability.Week {
		fixture.Weekly[day] = availability.NotWorking()
		if day != availability.Saturday && day != availability.Sunday {
			fixture.Weekly[day] = office
		}
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// Clock24 builds a time of day, panicking on out-of-range input.
func Clock24(hour, minute int) availability.TimeOfDay {
	t, err := availability.NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

// Day parses YYYY-MM-DD, panicking on malformed input.
func Day(value string) availability.Date {
	d, err := availability.ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// WithScheduleID overrides the schedule ID.
func WithScheduleID(id string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.ID = id
	}
}

// WithScheduleUser overrides the owning user.
func WithScheduleUser(userID string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.UserID = userID
	}
}

// WithWeeklyDay sets one weekday of the pattern.
func WithWeeklyDay(day availability.DayOfWeek, schedule availability.DaySchedule) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Weekly[day] = schedule
	}
}

// WithOverride sets the entry for one date.
func WithOverride(date string, schedule availability.DaySchedule) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Overrides[Day(date)] = schedule
	}
}

// WithScheduleTimestamps sets both timestamps.
func WithScheduleTimestamps(created, updated time.Time) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Domain returns the engine value.
func (f ScheduleFixture) Domain() availability.Schedule {
	weekly, err := availability.WeeklyFromMap(f.Weekly)
	if err != nil {
		panic(err)
	}
	schedule := availability.Schedule{
		ID:        f.ID,
		UserID:    f.UserID,
		Weekly:    weekly,
		Overrides: make(map[availability.Date]availability.DaySchedule, len(f.Overrides)),
	}
	for date, entry := range f.Overrides {
		schedule.Overrides[date] = entry
	}
	return schedule
}

// Application returns the service-layer aggregate.
func (f ScheduleFixture) Application() application.AvailabilitySchedule {
	return application.AvailabilitySchedule{
		Schedule:  f.Domain(),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Persistence returns the stored form.
func (f ScheduleFixture) Persistence() persistence.AvailabilitySchedule {
	out := persistence.AvailabilitySchedule{
		ID:        f.ID,
		UserID:    f.UserID,
		Weekly:    make(map[string]persistence.DayEntry, len(f.Weekly)),
		Overrides: make(map[string]persistence.DayEntry, len(f.Overrides)),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
	for day, entry := range f.Weekly {
		out.Weekly[string(day)] = dayEntry(entry)
	}
	for date, entry := range f.Overrides {
		out.Overrides[date.String()] = dayEntry(entry)
	}
	return out
}

func dayEntry(day availability.DaySchedule) persistence.DayEntry {
	entry := persistence.DayEntry{Working: day.Working}
	if day.StartTime != nil {
		v := day.StartTime.String()
		entry.StartTime = &v
	}
	if day.EndTime != nil {
		v := day.EndTime.String()
		entry.EndTime = &v
	}
	return entry
}
