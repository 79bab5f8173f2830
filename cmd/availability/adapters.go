package main

import (
	"context"
	"fmt"

	"github.com/example/delivery-availability/internal/application"
	"github.com/example/delivery-availability/internal/availability"
	"github.com/example/delivery-availability/internal/persistence"
)

type scheduleRepositoryAdapter struct {
	repo persistence.AvailabilityRepository
}

func newScheduleRepositoryAdapter(repo persistence.AvailabilityRepository) *scheduleRepositoryAdapter {
	return &scheduleRepositoryAdapter{repo: repo}
}

func (a *scheduleRepositoryAdapter) GetScheduleByUserID(ctx context.Context, userID string) (application.AvailabilitySchedule, error) {
	stored, err := a.repo.GetScheduleByUserID(ctx, userID)
	if err != nil {
		return application.AvailabilitySchedule{}, err
	}
	return toApplicationSchedule(stored)
}

func (a *scheduleRepositoryAdapter) SaveSchedule(ctx context.Context, schedule application.AvailabilitySchedule) (application.AvailabilitySchedule, error) {
	if err := a.repo.SaveSchedule(ctx, toPersistenceSchedule(schedule)); err != nil {
		return application.AvailabilitySchedule{}, err
	}
	return a.GetScheduleByUserID(ctx, schedule.UserID)
}

func (a *scheduleRepositoryAdapter) ListSchedules(ctx context.Context) ([]application.AvailabilitySchedule, error) {
	models, err := a.repo.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	schedules := make([]application.AvailabilitySchedule, 0, len(models))
	for _, model := range models {
		schedule, err := toApplicationSchedule(model)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, nil
}

// toApplicationSchedule rebuilds the domain aggregate from its stored form.
// Anything the engine would not have produced is reported as corrupt.
func toApplicationSchedule(model persistence.AvailabilitySchedule) (application.AvailabilitySchedule, error) {
	corrupt := func(what string, err error) error {
		return fmt.Errorf("%w: schedule %s %s: %v", persistence.ErrCorrupt, model.ID, what, err)
	}

	weekly := make(map[availability.DayOfWeek]availability.DaySchedule, len(model.Weekly))
	for key, entry := range model.Weekly {
		day, err := availability.ParseDayOfWeek(key)
		if err != nil {
			return application.AvailabilitySchedule{}, corrupt("weekday "+key, err)
		}
		schedule, err := toDaySchedule(entry)
		if err != nil {
			return application.AvailabilitySchedule{}, corrupt("weekday "+key, err)
		}
		weekly[day] = schedule
	}
	pattern, err := availability.WeeklyFromMap(weekly)
	if err != nil {
		return application.AvailabilitySchedule{}, corrupt("weekly pattern", err)
	}

	overrides := make(map[availability.Date]availability.DaySchedule, len(model.Overrides))
	for key, entry := range model.Overrides {
		date, err := availability.ParseDate(key)
		if err != nil {
			return application.AvailabilitySchedule{}, corrupt("override "+key, err)
		}
		schedule, err := toDaySchedule(entry)
		if err != nil {
			return application.AvailabilitySchedule{}, corrupt("override "+key, err)
		}
		overrides[date] = schedule
	}

	domain := availability.Schedule{
		ID:        model.ID,
		UserID:    model.UserID,
		Weekly:    pattern,
		Overrides: overrides,
	}
	if err := domain.Validate(); err != nil {
		return application.AvailabilitySchedule{}, corrupt("aggregate", err)
	}
	return application.AvailabilitySchedule{
		Schedule:  domain,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

func toDaySchedule(entry persistence.DayEntry) (availability.DaySchedule, error) {
	day := availability.DaySchedule{Working: entry.Working}
	if entry.StartTime != nil {
		start, err := availability.ParseTimeOfDay(*entry.StartTime)
		if err != nil {
			return availability.DaySchedule{}, err
		}
		day.StartTime = &start
	}
	if entry.EndTime != nil {
		end, err := availability.ParseTimeOfDay(*entry.EndTime)
		if err != nil {
			return availability.DaySchedule{}, err
		}
		day.EndTime = &end
	}
	return day, day.Validate()
}

func toPersistenceSchedule(schedule application.AvailabilitySchedule) persistence.AvailabilitySchedule {
	model := persistence.AvailabilitySchedule{
		ID:        schedule.ID,
		UserID:    schedule.UserID,
		Weekly:    make(map[string]persistence.DayEntry, len(availability.Week)),
		Overrides: make(map[string]persistence.DayEntry, len(schedule.Overrides)),
		CreatedAt: schedule.CreatedAt,
		UpdatedAt: schedule.UpdatedAt,
	}
	for _, day := range availability.Week {
		model.Weekly[day.String()] = toDayEntry(schedule.Weekly.Day(day))
	}
	for date, day := range schedule.Overrides {
		model.Overrides[date.String()] = toDayEntry(day)
	}
	return model
}

func toDayEntry(day availability.DaySchedule) persistence.DayEntry {
	entry := persistence.DayEntry{Working: day.Working}
	if day.StartTime != nil {
		start := day.StartTime.String()
		entry.StartTime = &start
	}
	if day.EndTime != nil {
		end := day.EndTime.String()
		entry.EndTime = &end
	}
	return entry
}
