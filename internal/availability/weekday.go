package availability

import (
	"strings"
	"time"
)

// DayOfWeek identifies one slot of the weekly pattern.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

// Week lists the weekdays in pattern order (Monday first).
var Week = [7]DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ParseDayOfWeek accepts any letter case and returns the canonical identifier.
func ParseDayOfWeek(value string) (DayOfWeek, error) {
	day := DayOfWeek(strings.ToUpper(strings.TrimSpace(value)))
	if !day.Valid() {
		return "", invalid("day", "must be one of MONDAY..SUNDAY")
	}
	return day, nil
}

// DayOfWeekFor converts a time.Weekday.
func DayOfWeekFor(wd time.Weekday) DayOfWeek {
	// time.Weekday starts on Sunday.
	return Week[(int(wd)+6)%7]
}

// Valid reports whether d is one of the seven identifiers.
func (d DayOfWeek) Valid() bool {
	return d.index() >= 0
}

// Weekday converts d to a time.Weekday.
func (d DayOfWeek) Weekday() time.Weekday {
	idx := d.index()
	if idx < 0 {
		return time.Sunday
	}
	return time.Weekday((idx + 1) % 7)
}

func (d DayOfWeek) String() string {
	return string(d)
}

func (d DayOfWeek) index() int {
	for i, day := range Week {
		if day == d {
			return i
		}
	}
	return -1
}

type daySet map[DayOfWeek]struct{}

func newDaySet(days []DayOfWeek) daySet {
	if len(days) == 0 {
		return nil
	}
	set := make(daySet, len(days))
	for _, day := range days {
		set[day] = struct{}{}
	}
	return set
}

// includes treats an empty set as "every day".
func (s daySet) includes(day DayOfWeek) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[day]
	return ok
}
