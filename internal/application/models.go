package application

import (
	"time"

	"github.com/example/delivery-availability/internal/availability"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// AvailabilitySchedule is a stored availability aggregate.
type AvailabilitySchedule struct {
	availability.Schedule
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DayInput carries one day as received on the wire. Empty strings mean the
// time was not supplied; times are ignored when Working is false.
type DayInput struct {
	Working   bool
	StartTime string
	EndTime   string
}

// ScheduleTarget names whose schedule a command acts on. An empty UserID
// means the principal's own schedule; naming another user requires admin.
type ScheduleTarget struct {
	Principal Principal
	UserID    string
}

// SaveScheduleParams replaces a whole schedule.
type SaveScheduleParams struct {
	ScheduleTarget
	Weekly    map[string]DayInput
	Overrides map[string]DayInput
}

// UpdateDayParams edits one weekday of the recurring pattern.
type UpdateDayParams struct {
	ScheduleTarget
	Day   string
	Input DayInput
}

// UpdateDateParams sets the override for one date.
type UpdateDateParams struct {
	ScheduleTarget
	Date  string
	Input DayInput
}

// ClearDateParams removes the override for one date.
type ClearDateParams struct {
	ScheduleTarget
	Date string
}

// DateRange is an inclusive YYYY-MM-DD span.
type DateRange struct {
	StartDate string
	EndDate   string
}

// UpdateDateRangeParams writes one entry over a span, optionally only on
// the listed weekdays.
type UpdateDateRangeParams struct {
	ScheduleTarget
	DateRange
	DaysOfWeek []string
	Input      DayInput
}

// ClearDateRangeParams removes the overrides in a span.
type ClearDateRangeParams struct {
	ScheduleTarget
	DateRange
}

// GenerateMonthlyParams freezes the weekly pattern into overrides. Month
// (YYYY-MM) takes precedence over an explicit span.
type GenerateMonthlyParams struct {
	ScheduleTarget
	DateRange
	Month string
}

// CheckAvailabilityParams asks whether a user works at an instant.
type CheckAvailabilityParams struct {
	ScheduleTarget
	At string
}

// FindAvailableParams lists every user working at an instant.
type FindAvailableParams struct {
	Principal Principal
	At        string
}

// EffectiveScheduleParams requests the resolved calendar over a span.
type EffectiveScheduleParams struct {
	ScheduleTarget
	DateRange
}

// AvailabilityCheck is the answer to CheckDateTimeAvailability.
type AvailabilityCheck struct {
	UserID    string
	At        availability.Instant
	Available bool
}
