package availability

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// TimeOfDay is a wall-clock time with minute granularity, counted in minutes
// since midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from an hour and minute.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, invalid("time", "must be between 00:00 and 23:59")
	}
	return TimeOfDay(hour*60 + minute), nil
}

// ParseTimeOfDay reads HH:mm. HH:mm:ss is tolerated when the seconds are zero.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	if parsed, err := time.Parse("15:04", value); err == nil && len(value) == 5 {
		return TimeOfDay(parsed.Hour()*60 + parsed.Minute()), nil
	}
	if parsed, err := time.Parse("15:04:05", value); err == nil && len(value) == 8 && parsed.Second() == 0 {
		return TimeOfDay(parsed.Hour()*60 + parsed.Minute()), nil
	}
	return 0, invalid("time", "must be formatted as HH:mm")
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes out-of-range values the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf takes the calendar fields of t in t's own location. Callers are
// responsible for converting t to the intended zone first.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate reads YYYY-MM-DD.
func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, invalid("date", "must be formatted as YYYY-MM-DD")
	}
	return DateOf(parsed), nil
}

// ParseMonth reads YYYY-MM and returns the first and last day of that month.
func ParseMonth(value string) (Date, Date, error) {
	parsed, err := time.Parse(monthLayout, value)
	if err != nil {
		return Date{}, Date{}, invalid("month", "must be formatted as YYYY-MM")
	}
	first, last := MonthSpan(parsed.Year(), parsed.Month())
	return first, last, nil
}

// MonthSpan returns the first and last day of the given month.
func MonthSpan(year int, month time.Month) (Date, Date) {
	first := NewDate(year, month, 1)
	return first, NewDate(year, month+1, 0)
}

func (d Date) time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return d.time().Format(dateLayout)
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(other Date) int {
	return d.time().Compare(other.time())
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool  { return d.Compare(other) > 0 }

// DaysUntil counts the days from d to other; negative when other is earlier.
func (d Date) DaysUntil(other Date) int {
	return int(other.time().Sub(d.time()).Hours() / 24)
}

// DayOfWeek returns the weekday identifier of d.
func (d Date) DayOfWeek() DayOfWeek {
	return DayOfWeekFor(d.time().Weekday())
}

// Instant is a calendar-naive point in time: a date plus a time of day.
type Instant struct {
	Date Date
	Time TimeOfDay
}

var instantLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05"}

// ParseInstant reads an ISO-8601 local datetime (YYYY-MM-DDTHH:mm[:ss]).
// Offsets are rejected and seconds are truncated.
func ParseInstant(value string) (Instant, error) {
	for _, layout := range instantLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return InstantOf(parsed), nil
		}
	}
	return Instant{}, invalid("at", "must be an ISO-8601 local datetime (YYYY-MM-DDTHH:mm)")
}

// InstantOf splits t using its own location.
func InstantOf(t time.Time) Instant {
	return Instant{Date: DateOf(t), Time: TimeOfDay(t.Hour()*60 + t.Minute())}
}

func (i Instant) String() string {
	return i.Date.String() + "T" + i.Time.String()
}
