package persistence_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/delivery-availability/internal/availability"
	"github.com/example/delivery-availability/internal/persistence"
	"github.com/example/delivery-availability/internal/testfixtures"
)

func newPersistenceSchedule(opts ...testfixtures.ScheduleOption) persistence.AvailabilitySchedule {
	return testfixtures.NewScheduleFixture(opts...).Persistence()
}

func TestAvailabilityRepository(t *testing.T) {
	t.Parallel()

	for _, backend := range testfixtures.Backends(t) {
		backend := backend
		t.Run(backend.Name, func(t *testing.T) {
			t.Parallel()
			runAvailabilityRepositoryContract(t, backend.Repo)
		})
	}
}

func runAvailabilityRepositoryContract(t *testing.T, repo persistence.AvailabilityRepository) {
	ctx := context.Background()
	base := testfixtures.ReferenceTime()

	t.Run("reports missing schedules", func(t *testing.T) {
		if _, err := repo.GetScheduleByUserID(ctx, "nobody"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("round trips the aggregate", func(t *testing.T) {
		schedule := newPersistenceSchedule(
			testfixtures.WithScheduleID("schedule-rt"),
			testfixtures.WithScheduleUser("courier-rt"),
			testfixtures.WithOverride("2024-03-18", availability.NotWorking()),
			testfixtures.WithOverride("2024-03-23", availability.WorkingBetween(testfixtures.Clock24(10, 0), testfixtures.Clock24(14, 30))),
			testfixtures.WithScheduleTimestamps(base, base.Add(time.Hour)),
		)
		if err := repo.SaveSchedule(ctx, schedule); err != nil {
			t.Fatalf("SaveSchedule failed: %v", err)
		}

		fetched, err := repo.GetScheduleByUserID(ctx, "courier-rt")
		if err != nil {
			t.Fatalf("GetScheduleByUserID failed: %v", err)
		}
		if fetched.ID != "schedule-rt" || len(fetched.Weekly) != 7 || len(fetched.Overrides) != 2 {
			t.Fatalf("unexpected schedule: %#v", fetched)
		}
		if !fetched.CreatedAt.Equal(base) || !fetched.UpdatedAt.Equal(base.Add(time.Hour)) {
			t.Fatalf("unexpected timestamps %v/%v", fetched.CreatedAt, fetched.UpdatedAt)
		}
		saturday := fetched.Overrides["2024-03-23"]
		if !saturday.Working || saturday.StartTime == nil || *saturday.StartTime != "10:00" || *saturday.EndTime != "14:30" {
			t.Fatalf("unexpected saturday override %#v", saturday)
		}
		if off := fetched.Overrides["2024-03-18"]; off.Working || off.StartTime != nil || off.EndTime != nil {
			t.Fatalf("unexpected monday override %#v", off)
		}
		if sunday := fetched.Weekly["SUNDAY"]; sunday.Working {
			t.Fatalf("expected sunday off, got %#v", sunday)
		}
	})

	t.Run("save replaces overrides", func(t *testing.T) {
		schedule := newPersistenceSchedule(
			testfixtures.WithScheduleID("schedule-replace"),
			testfixtures.WithScheduleUser("courier-replace"),
			testfixtures.WithOverride("2024-01-01", availability.NotWorking()),
			testfixtures.WithOverride("2024-01-02", availability.NotWorking()),
		)
		if err := repo.SaveSchedule(ctx, schedule); err != nil {
			t.Fatalf("SaveSchedule failed: %v", err)
		}

		delete(schedule.Overrides, "2024-01-01")
		monday := "08:00"
		schedule.Weekly["MONDAY"] = persistence.DayEntry{Working: true, StartTime: &monday, EndTime: schedule.Weekly["MONDAY"].EndTime}
		if err := repo.SaveSchedule(ctx, schedule); err != nil {
			t.Fatalf("SaveSchedule failed: %v", err)
		}

		fetched, err := repo.GetScheduleByUserID(ctx, "courier-replace")
		if err != nil {
			t.Fatalf("GetScheduleByUserID failed: %v", err)
		}
		if _, ok := fetched.Overrides["2024-01-01"]; ok || len(fetched.Overrides) != 1 {
			t.Fatalf("expected override set to be replaced, got %#v", fetched.Overrides)
		}
		if start := fetched.Weekly["MONDAY"].StartTime; start == nil || *start != "08:00" {
			t.Fatalf("expected weekly update to persist, got %v", start)
		}
	})

	t.Run("returned values are detached", func(t *testing.T) {
		schedule := newPersistenceSchedule(testfixtures.WithScheduleID("schedule-copy"), testfixtures.WithScheduleUser("courier-copy"))
		if err := repo.SaveSchedule(ctx, schedule); err != nil {
			t.Fatalf("SaveSchedule failed: %v", err)
		}
		schedule.Overrides["2030-01-01"] = persistence.DayEntry{}

		fetched, err := repo.GetScheduleByUserID(ctx, "courier-copy")
		if err != nil {
			t.Fatalf("GetScheduleByUserID failed: %v", err)
		}
		if len(fetched.Overrides) != 0 {
			t.Fatalf("expected caller mutation not to leak, got %#v", fetched.Overrides)
		}
	})

	t.Run("rejects a second schedule for a user", func(t *testing.T) {
		first := newPersistenceSchedule(testfixtures.WithScheduleID("schedule-dup-1"), testfixtures.WithScheduleUser("courier-dup"))
		if err := repo.SaveSchedule(ctx, first); err != nil {
			t.Fatalf("SaveSchedule failed: %v", err)
		}
		second := newPersistenceSchedule(testfixtures.WithScheduleID("schedule-dup-2"), testfixtures.WithScheduleUser("courier-dup"))
		if err := repo.SaveSchedule(ctx, second); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		moved := first
		moved.UserID = "courier-dup-other"
		if err := repo.SaveSchedule(ctx, moved); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate when reassigning a schedule, got %v", err)
		}
	})

	t.Run("lists schedules by user", func(t *testing.T) {
		schedules, err := repo.ListSchedules(ctx)
		if err != nil {
			t.Fatalf("ListSchedules failed: %v", err)
		}
		if len(schedules) < 4 {
			t.Fatalf("expected previously saved schedules, got %d", len(schedules))
		}
		for i := 1; i < len(schedules); i++ {
			if schedules[i-1].UserID >= schedules[i].UserID {
				t.Fatalf("expected ordering by user id, got %q before %q", schedules[i-1].UserID, schedules[i].UserID)
			}
		}
		for _, schedule := range schedules {
			if schedule.UserID == "courier-rt" && len(schedule.Overrides) != 2 {
				t.Fatalf("expected overrides to be listed, got %#v", schedule.Overrides)
			}
		}
	})

	t.Run("concurrent saves for different users", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				schedule := newPersistenceSchedule(
					testfixtures.WithScheduleID(fmt.Sprintf("schedule-par-%d", i)),
					testfixtures.WithScheduleUser(fmt.Sprintf("courier-par-%d", i)),
					testfixtures.WithOverride("2024-05-01", availability.NotWorking()),
				)
				errs <- repo.SaveSchedule(ctx, schedule)
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("SaveSchedule failed: %v", err)
			}
		}
	})
}
