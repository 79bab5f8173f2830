package availability

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"00:00":    "00:00",
		"09:05":    "09:05",
		"23:59":    "23:59",
		"17:30:00": "17:30",
	}
	for input, want := range valid {
		got, err := ParseTimeOfDay(input)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", input, err)
		}
		if got.String() != want {
			t.Fatalf("ParseTimeOfDay(%q) = %s, want %s", input, got, want)
		}
	}

	for _, input := range []string{"", "9:00", "24:00", "12:60", "12:00:30", "noon", "12:00Z"} {
		if _, err := ParseTimeOfDay(input); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseTimeOfDay(%q): expected validation error, got %v", input, err)
		}
	}
}

func TestNewTimeOfDay(t *testing.T) {
	t.Parallel()

	tod, err := NewTimeOfDay(7, 45)
	if err != nil || tod.Hour() != 7 || tod.Minute() != 45 {
		t.Fatalf("unexpected result %v, %v", tod, err)
	}
	if _, err := NewTimeOfDay(24, 0); err == nil {
		t.Fatalf("expected error for hour 24")
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.String() != "2024-02-29" || d.DayOfWeek() != Thursday {
		t.Fatalf("unexpected date %s (%s)", d, d.DayOfWeek())
	}

	for _, input := range []string{"2023-02-29", "2024-2-1", "2024/01/01", "2024-01-01T00:00"} {
		if _, err := ParseDate(input); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseDate(%q): expected validation error, got %v", input, err)
		}
	}
}

func TestDateArithmetic(t *testing.T) {
	t.Parallel()

	d := NewDate(2024, time.December, 31)
	next := d.AddDays(1)
	if next.String() != "2025-01-01" {
		t.Fatalf("expected year rollover, got %s", next)
	}
	if !d.Before(next) || !next.After(d) || d.Compare(d) != 0 {
		t.Fatalf("unexpected ordering between %s and %s", d, next)
	}
	if got := NewDate(2024, time.March, 1).DaysUntil(NewDate(2024, time.March, 31)); got != 30 {
		t.Fatalf("expected 30 days, got %d", got)
	}
	if got := d.AddDays(-366).String(); got != "2023-12-31" {
		t.Fatalf("expected leap-year aware subtraction, got %s", got)
	}
}

func TestParseMonth(t *testing.T) {
	t.Parallel()

	first, last, err := ParseMonth("2023-02")
	if err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	if first.String() != "2023-02-01" || last.String() != "2023-02-28" {
		t.Fatalf("unexpected span %s..%s", first, last)
	}
	if _, _, err := ParseMonth("2023-13"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseInstant(t *testing.T) {
	t.Parallel()

	at, err := ParseInstant("2024-03-04T09:15:59")
	if err != nil {
		t.Fatalf("ParseInstant: %v", err)
	}
	if at.String() != "2024-03-04T09:15" {
		t.Fatalf("expected seconds to be truncated, got %s", at)
	}

	for _, input := range []string{"2024-03-04", "2024-03-04T09:15Z", "2024-03-04T09:15+02:00", "2024-03-04 09:15"} {
		if _, err := ParseInstant(input); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseInstant(%q): expected validation error, got %v", input, err)
		}
	}
}

func TestDayOfWeek(t *testing.T) {
	t.Parallel()

	for _, wd := range []time.Weekday{time.Sunday, time.Monday, time.Saturday} {
		if got := DayOfWeekFor(wd).Weekday(); got != wd {
			t.Fatalf("round trip of %s produced %s", wd, got)
		}
	}
	if DayOfWeekFor(time.Sunday) != Sunday {
		t.Fatalf("expected SUNDAY for time.Sunday")
	}

	day, err := ParseDayOfWeek(" tuesday ")
	if err != nil || day != Tuesday {
		t.Fatalf("expected TUESDAY, got %q (%v)", day, err)
	}
	if _, err := ParseDayOfWeek("TUES"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
