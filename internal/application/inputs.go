package application

import (
	"strings"

	"github.com/example/delivery-availability/internal/availability"
)

// Wire-level parsing for service params. Failures are collected into vErr
// under the field name the caller sent.

func parseClock(field, value string, vErr *ValidationError) *availability.TimeOfDay {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := availability.ParseTimeOfDay(value)
	if err != nil {
		vErr.add(field, "must be formatted as HH:mm")
		return nil
	}
	return &t
}

// parseDayInput drops supplied times for a non-working day.
func parseDayInput(prefix string, input DayInput, vErr *ValidationError) (*availability.TimeOfDay, *availability.TimeOfDay) {
	if !input.Working {
		return nil, nil
	}
	start := parseClock(prefix+"start_time", input.StartTime, vErr)
	end := parseClock(prefix+"end_time", input.EndTime, vErr)
	return start, end
}

func parseDaySchedule(prefix string, input DayInput, vErr *ValidationError) (availability.DaySchedule, bool) {
	before := len(vErr.FieldErrors)
	start, end := parseDayInput(prefix, input, vErr)
	if len(vErr.FieldErrors) != before {
		return availability.DaySchedule{}, false
	}
	day, err := availability.NewDaySchedule(input.Working, start, end)
	if err != nil {
		vErr.addEngine(prefix, err)
		return availability.DaySchedule{}, false
	}
	return day, true
}

func parseDate(field, value string, vErr *ValidationError) availability.Date {
	value = strings.TrimSpace(value)
	if value == "" {
		vErr.add(field, "is required")
		return availability.Date{}
	}
	date, err := availability.ParseDate(value)
	if err != nil {
		vErr.add(field, "must be formatted as YYYY-MM-DD")
		return availability.Date{}
	}
	return date
}

func parseInstant(value string, vErr *ValidationError) availability.Instant {
	value = strings.TrimSpace(value)
	if value == "" {
		vErr.add("at", "is required")
		return availability.Instant{}
	}
	at, err := availability.ParseInstant(value)
	if err != nil {
		vErr.addEngine("", err)
		return availability.Instant{}
	}
	return at
}

func parseDays(values []string, vErr *ValidationError) []availability.DayOfWeek {
	if len(values) == 0 {
		return nil
	}
	days := make([]availability.DayOfWeek, 0, len(values))
	for _, value := range values {
		day, err := availability.ParseDayOfWeek(value)
		if err != nil {
			vErr.add("days_of_week", "must contain only MONDAY..SUNDAY")
			continue
		}
		days = append(days, day)
	}
	return days
}

func parseWeekly(entries map[string]DayInput, vErr *ValidationError) availability.WeeklySchedule {
	parsed := make(map[availability.DayOfWeek]availability.DaySchedule, len(entries))
	for key, input := range entries {
		field := "weekly_schedule." + key
		day, err := availability.ParseDayOfWeek(key)
		if err != nil {
			vErr.add(field, "is not a weekday")
			continue
		}
		field = "weekly_schedule." + string(day)
		if _, dup := parsed[day]; dup {
			vErr.add(field, "is given more than once")
			continue
		}
		if schedule, ok := parseDaySchedule(field+".", input, vErr); ok {
			parsed[day] = schedule
		}
	}
	for _, day := range availability.Week {
		field := "weekly_schedule." + string(day)
		if _, ok := parsed[day]; !ok && vErr.FieldErrors[field] == "" && !hasFieldPrefix(vErr, field+".") {
			vErr.add(field, "is required")
		}
	}
	if vErr.HasErrors() {
		return availability.WeeklySchedule{}
	}
	weekly, err := availability.WeeklyFromMap(parsed)
	if err != nil {
		vErr.addEngine("", err)
	}
	return weekly
}

func parseOverrides(entries map[string]DayInput, vErr *ValidationError) map[availability.Date]availability.DaySchedule {
	overrides := make(map[availability.Date]availability.DaySchedule, len(entries))
	for key, input := range entries {
		field := "monthly_schedule." + key
		date, err := availability.ParseDate(strings.TrimSpace(key))
		if err != nil {
			vErr.add(field, "must be formatted as YYYY-MM-DD")
			continue
		}
		if schedule, ok := parseDaySchedule(field+".", input, vErr); ok {
			overrides[date] = schedule
		}
	}
	return overrides
}

func hasFieldPrefix(vErr *ValidationError, prefix string) bool {
	for field := range vErr.FieldErrors {
		if strings.HasPrefix(field, prefix) {
			return true
		}
	}
	return false
}
