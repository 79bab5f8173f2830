package availability

// Resolve returns the effective entry for date. An override wins as-is;
// otherwise the weekly entry for the date's weekday applies.
func Resolve(s Schedule, date Date) DaySchedule {
	if entry, ok := s.Override(date); ok {
		return entry
	}
	return s.Weekly.Day(date.DayOfWeek())
}

// ResolvedDay is one row of an effective calendar.
type ResolvedDay struct {
	Date       Date
	Schedule   DaySchedule
	Overridden bool
}

// ResolveRange resolves every date in [start, end].
func ResolveRange(s Schedule, start, end Date) ([]ResolvedDay, error) {
	if err := checkSpan(start, end); err != nil {
		return nil, err
	}
	days := make([]ResolvedDay, 0, start.DaysUntil(end)+1)
	eachDay(start, end, func(date Date) {
		_, overridden := s.Overrides[date]
		days = append(days, ResolvedDay{Date: date, Schedule: Resolve(s, date), Overridden: overridden})
	})
	return days, nil
}

// UpdateWeekday replaces one weekly entry. Overrides are left alone, so dates
// that already carry one keep resolving to it.
func UpdateWeekday(s Schedule, day DayOfWeek, working bool, start, end *TimeOfDay) (Schedule, error) {
	if !day.Valid() {
		return s, invalid("day", "must be one of MONDAY..SUNDAY")
	}
	entry, err := NewDaySchedule(working, start, end)
	if err != nil {
		return s, err
	}
	out := s.Clone()
	out.Weekly = out.Weekly.With(day, entry)
	return out, nil
}

// UpdateDate inserts or replaces the override for date.
func UpdateDate(s Schedule, date Date, working bool, start, end *TimeOfDay) (Schedule, error) {
	entry, err := NewDaySchedule(working, start, end)
	if err != nil {
		return s, err
	}
	out := s.Clone()
	out.Overrides[date] = entry
	return out, nil
}

// ClearDate removes the override for date. Clearing an absent override is a
// no-op.
func ClearDate(s Schedule, date Date) Schedule {
	out := s.Clone()
	delete(out.Overrides, date)
	return out
}

// RangeUpdate is a batch write over [Start, End]. When Days is non-empty
// only dates falling on those weekdays are written.
type RangeUpdate struct {
	Start     Date
	End       Date
	Working   bool
	StartTime *TimeOfDay
	EndTime   *TimeOfDay
	Days      []DayOfWeek
}

// UpdateRange applies one entry to every qualifying date. All input is
// validated before anything is written. A filter that matches no date in
// the range leaves the schedule unchanged.
func UpdateRange(s Schedule, update RangeUpdate) (Schedule, error) {
	if err := checkSpan(update.Start, update.End); err != nil {
		return s, err
	}
	for _, day := range update.Days {
		if !day.Valid() {
			return s, invalid("days_of_week", "must contain only MONDAY..SUNDAY")
		}
	}
	entry, err := NewDaySchedule(update.Working, update.StartTime, update.EndTime)
	if err != nil {
		return s, err
	}

	filter := newDaySet(update.Days)
	out := s.Clone()
	eachDay(update.Start, update.End, func(date Date) {
		if filter.includes(date.DayOfWeek()) {
			out.Overrides[date] = entry.clone()
		}
	})
	return out, nil
}

// ClearRange removes every override in [start, end].
func ClearRange(s Schedule, start, end Date) (Schedule, error) {
	if err := checkSpan(start, end); err != nil {
		return s, err
	}
	out := s.Clone()
	for date := range out.Overrides {
		if !date.Before(start) && !date.After(end) {
			delete(out.Overrides, date)
		}
	}
	return out, nil
}

// GenerateFromWeekly writes the weekly entry of each date in [start, end] as
// an override, replacing whatever override was there.
func GenerateFromWeekly(s Schedule, start, end Date) (Schedule, error) {
	if err := checkSpan(start, end); err != nil {
		return s, err
	}
	out := s.Clone()
	eachDay(start, end, func(date Date) {
		out.Overrides[date] = out.Weekly.Day(date.DayOfWeek())
	})
	return out, nil
}

// ClearOverrides removes every override and keeps the weekly pattern.
func ClearOverrides(s Schedule) Schedule {
	out := s.Clone()
	out.Overrides = map[Date]DaySchedule{}
	return out
}

// IsAvailableAt reports whether the user works at the instant. The start of
// the interval is inclusive and the end exclusive.
func IsAvailableAt(s Schedule, at Instant) bool {
	return Resolve(s, at.Date).Contains(at.Time)
}

// FindAvailableUsers returns the user ids, in input order, whose schedule is
// available at the instant.
func FindAvailableUsers(schedules []Schedule, at Instant) []string {
	users := make([]string, 0)
	for _, s := range schedules {
		if IsAvailableAt(s, at) {
			users = append(users, s.UserID)
		}
	}
	return users
}

func checkSpan(start, end Date) error {
	if start.IsZero() {
		return invalid("start_date", "is required")
	}
	if end.IsZero() {
		return invalid("end_date", "is required")
	}
	if start.After(end) {
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

func eachDay(start, end Date, fn func(Date)) {
	for current := start; !current.After(end); current = current.AddDays(1) {
		fn(current)
	}
}
