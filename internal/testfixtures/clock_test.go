package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockMoves(t *testing.T) {
	start := time.Date(2024, time.March, 14, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)
	nowFn := clock.NowFunc()

	if got := clock.Advance(90 * time.Minute); !got.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", got)
	}
	if got := clock.AdvanceDays(2); got.Day() != 16 || got.Hour() != 10 || got.Minute() != 56 {
		t.Fatalf("unexpected time after AdvanceDays: %v", got)
	}

	clock.Set(start)
	if got := nowFn(); !got.Equal(start) {
		t.Fatalf("expected NowFunc to follow Set, got %v", got)
	}
}
