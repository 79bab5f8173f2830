// Package availability implements the availability scheduling engine: a
// recurring weekly pattern combined with per-date overrides.
//
// Every operation is a pure function over a Schedule value. Mutating
// operations return a new Schedule and leave their input untouched, so a
// rejected call never corrupts the caller's copy. The package performs no
// I/O; loading, saving and serializing concurrent writers per user belong to
// the caller.
package availability

// DaySchedule describes one day: either not working (no times) or working
// between StartTime (inclusive) and EndTime (exclusive).
type DaySchedule struct {
	Working   bool
	StartTime *TimeOfDay
	EndTime   *TimeOfDay
}

// NotWorking returns the canonical non-working day.
func NotWorking() DaySchedule {
	return DaySchedule{}
}

// WorkingBetween returns a working day. The bounds are not validated; use
// NewDaySchedule for untrusted input.
func WorkingBetween(start, end TimeOfDay) DaySchedule {
	return DaySchedule{Working: true, StartTime: &start, EndTime: &end}
}

// NewDaySchedule applies the working/time rules. Times supplied for a
// non-working day are discarded.
func NewDaySchedule(working bool, start, end *TimeOfDay) (DaySchedule, error) {
	if !working {
		return NotWorking(), nil
	}
	if start == nil {
		return DaySchedule{}, invalid("start_time", "is required when working")
	}
	if end == nil {
		return DaySchedule{}, invalid("end_time", "is required when working")
	}
	if *start >= *end {
		return DaySchedule{}, invalid("end_time", "must be after start_time")
	}
	return WorkingBetween(*start, *end), nil
}

// Validate checks a DaySchedule that did not come from NewDaySchedule, such
// as one decoded from storage.
func (d DaySchedule) Validate() error {
	if !d.Working {
		if d.StartTime != nil || d.EndTime != nil {
			return invalid("working", "non-working day must not carry times")
		}
		return nil
	}
	_, err := NewDaySchedule(true, d.StartTime, d.EndTime)
	return err
}

// Contains reports whether t falls inside the working interval.
func (d DaySchedule) Contains(t TimeOfDay) bool {
	if !d.Working || d.StartTime == nil || d.EndTime == nil {
		return false
	}
	return *d.StartTime <= t && t < *d.EndTime
}

// Equal compares by value.
func (d DaySchedule) Equal(other DaySchedule) bool {
	return d.Working == other.Working && sameTime(d.StartTime, other.StartTime) && sameTime(d.EndTime, other.EndTime)
}

func sameTime(a, b *TimeOfDay) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (d DaySchedule) clone() DaySchedule {
	out := DaySchedule{Working: d.Working}
	if d.StartTime != nil {
		start := *d.StartTime
		out.StartTime = &start
	}
	if d.EndTime != nil {
		end := *d.EndTime
		out.EndTime = &end
	}
	return out
}

// WeeklySchedule holds exactly one DaySchedule per weekday. The fixed array
// makes a partial pattern unrepresentable.
type WeeklySchedule struct {
	days [7]DaySchedule
}

// Day returns the entry for day. Unknown identifiers resolve to NotWorking.
func (w WeeklySchedule) Day(day DayOfWeek) DaySchedule {
	idx := day.index()
	if idx < 0 {
		return NotWorking()
	}
	return w.days[idx].clone()
}

// With returns a copy of w with day replaced.
func (w WeeklySchedule) With(day DayOfWeek, schedule DaySchedule) WeeklySchedule {
	idx := day.index()
	if idx < 0 {
		return w
	}
	out := w.clone()
	out.days[idx] = schedule.clone()
	return out
}

// WeeklyFromMap builds a pattern from a map that must contain all seven days.
func WeeklyFromMap(entries map[DayOfWeek]DaySchedule) (WeeklySchedule, error) {
	var weekly WeeklySchedule
	for i, day := range Week {
		entry, ok := entries[day]
		if !ok {
			return WeeklySchedule{}, invalid("weekly_schedule."+string(day), "is required")
		}
		if err := entry.Validate(); err != nil {
			return WeeklySchedule{}, prefixField(err, "weekly_schedule."+string(day))
		}
		weekly.days[i] = entry.clone()
	}
	for day := range entries {
		if !day.Valid() {
			return WeeklySchedule{}, invalid("weekly_schedule."+string(day), "is not a weekday")
		}
	}
	return weekly, nil
}

// Map returns the pattern keyed by weekday.
func (w WeeklySchedule) Map() map[DayOfWeek]DaySchedule {
	out := make(map[DayOfWeek]DaySchedule, len(Week))
	for i, day := range Week {
		out[day] = w.days[i].clone()
	}
	return out
}

func (w WeeklySchedule) clone() WeeklySchedule {
	var out WeeklySchedule
	for i := range w.days {
		out.days[i] = w.days[i].clone()
	}
	return out
}

// Schedule is the availability aggregate for a single user.
type Schedule struct {
	ID        string
	UserID    string
	Weekly    WeeklySchedule
	Overrides map[Date]DaySchedule
}

// Empty returns a schedule with every weekday not working and no overrides.
func Empty(userID string) Schedule {
	return Schedule{
		UserID:    userID,
		Overrides: map[Date]DaySchedule{},
	}
}

// Validate checks every entry of a schedule assembled outside the engine.
func (s Schedule) Validate() error {
	for _, day := range Week {
		if err := s.Weekly.Day(day).Validate(); err != nil {
			return prefixField(err, "weekly_schedule."+string(day))
		}
	}
	for date, entry := range s.Overrides {
		if err := entry.Validate(); err != nil {
			return prefixField(err, "monthly_schedule."+date.String())
		}
	}
	return nil
}

// Override returns the explicit entry for date, if any.
func (s Schedule) Override(date Date) (DaySchedule, bool) {
	entry, ok := s.Overrides[date]
	if !ok {
		return DaySchedule{}, false
	}
	return entry.clone(), true
}

// EarliestOverride returns the oldest overridden date.
func (s Schedule) EarliestOverride() (Date, bool) {
	var earliest Date
	found := false
	for date := range s.Overrides {
		if !found || date.Before(earliest) {
			earliest = date
			found = true
		}
	}
	return earliest, found
}

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	out := Schedule{
		ID:        s.ID,
		UserID:    s.UserID,
		Weekly:    s.Weekly.clone(),
		Overrides: make(map[Date]DaySchedule, len(s.Overrides)),
	}
	for date, entry := range s.Overrides {
		out.Overrides[date] = entry.clone()
	}
	return out
}

func prefixField(err error, prefix string) error {
	vErr, ok := err.(*ValidationError)
	if !ok {
		return err
	}
	field := prefix
	if vErr.Field != "" && vErr.Field != "working" {
		field = prefix + "." + vErr.Field
	}
	return &ValidationError{Field: field, Message: vErr.Message}
}
