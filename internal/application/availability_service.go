package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/availability"
	"github.com/example/delivery-availability/internal/locker"
	"github.com/example/delivery-availability/internal/persistence"
)

// DefaultMaxRangeDays caps range commands unless overridden.
const DefaultMaxRangeDays = 366

// ScheduleRepository captures the persistence interactions needed by the service.
// SaveSchedule replaces the stored aggregate as a whole.
type ScheduleRepository interface {
	GetScheduleByUserID(ctx context.Context, userID string) (AvailabilitySchedule, error)
	SaveSchedule(ctx context.Context, schedule AvailabilitySchedule) (AvailabilitySchedule, error)
	ListSchedules(ctx context.Context) ([]AvailabilitySchedule, error)
}

// UserLocker serializes load-modify-save cycles per key.
type UserLocker interface {
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}

var errRepositoryMissing = errors.New("schedule repository not configured")

// AvailabilityService exposes the availability commands. Every write runs
// under a per-user lock: load (or start from an empty schedule), apply one
// engine operation, save.
type AvailabilityService struct {
	schedules    ScheduleRepository
	locks        UserLocker
	idGenerator  func() string
	now          func() time.Time
	maxRangeDays int
	logger       *zap.Logger
}

// NewAvailabilityService wires dependencies for availability operations.
func NewAvailabilityService(schedules ScheduleRepository, locks UserLocker, idGenerator func() string, now func() time.Time) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(schedules, locks, idGenerator, now, nil)
}

// NewAvailabilityServiceWithLogger is NewAvailabilityService with an explicit base logger.
func NewAvailabilityServiceWithLogger(schedules ScheduleRepository, locks UserLocker, idGenerator func() string, now func() time.Time, logger *zap.Logger) *AvailabilityService {
	if locks == nil {
		locks = locker.NewLocal()
	}
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &AvailabilityService{
		schedules:    schedules,
		locks:        locks,
		idGenerator:  idGenerator,
		now:          now,
		maxRangeDays: DefaultMaxRangeDays,
		logger:       defaultLogger(logger),
	}
}

// WithMaxRangeDays sets the longest span range commands accept. Zero or a
// negative value removes the cap.
func (s *AvailabilityService) WithMaxRangeDays(days int) *AvailabilityService {
	if s != nil {
		s.maxRangeDays = days
	}
	return s
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, principal Principal) *zap.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation,
		zap.String("principal_id", principal.UserID),
		zap.Bool("principal_admin", principal.IsAdmin),
	)
}

// GetSchedule returns the target's schedule, creating and storing an empty
// one on first access.
func (s *AvailabilityService) GetSchedule(ctx context.Context, target ScheduleTarget) (schedule AvailabilitySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "GetSchedule", target.Principal)
	defer func() { logOutcome(logger, err, "schedule loaded", zap.String("user_id", schedule.UserID)) }()

	userID, err := resolveTarget(target)
	if err != nil {
		return
	}
	schedule, err = s.loadOrCreate(ctx, logger, userID)
	return
}

// SaveSchedule replaces the weekly pattern and every override of the target.
// The weekly map must name all seven days.
func (s *AvailabilityService) SaveSchedule(ctx context.Context, params SaveScheduleParams) (schedule AvailabilitySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "SaveSchedule", params.Principal)
	defer func() {
		logOutcome(logger, err, "schedule saved", zap.String("user_id", schedule.UserID), zap.Int("overrides", len(schedule.Overrides)))
	}()

	userID, err := resolveTarget(params.ScheduleTarget)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	weekly := parseWeekly(params.Weekly, vErr)
	overrides := parseOverrides(params.Overrides, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedule, err = s.mutate(ctx, logger, userID, func(current availability.Schedule) (availability.Schedule, error) {
		next := current.Clone()
		next.Weekly = weekly
		next.Overrides = overrides
		return next, nil
	})
	return
}

// UpdateDayAvailability changes one weekday of the recurring pattern.
func (s *AvailabilityService) UpdateDayAvailability(ctx context.Context, params UpdateDayParams) (schedule AvailabilitySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "UpdateDayAvailability", params.Principal)
	defer func() {
		logOutcome(logger, err, "weekday updated", zap.String("user_id", schedule.UserID), zap.String("day", params.Day))
	}()

	userID, err := resolveTarget(params.ScheduleTarget)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	day, dayErr := availability.ParseDayOfWeek(params.Day)
	if dayErr != nil {
		vErr.addEngine("", dayErr)
	}
	start, end := parseDayInput("", params.Input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedule, err = s.mutate(ctx, logger, userID, func(current availability.Schedule) (availability.Schedule, error) {
		return availability.UpdateWeekday(current, day, params.Input.Working, start, end)
	})
	return
}

// UpdateDateAvailability sets the override for a single date.
func (s *AvailabilityService) UpdateDateAvailability(ctx context.Context, params UpdateDateParams) (schedule AvailabilitySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "UpdateDateAvailability", params.Principal)
	defer func() {
		logOutcome(logger, err, "date override set", zap.String("user_id", schedule.UserID), zap.String("date", params.Date))
	}()

	userID, err := resolveTarget(params.ScheduleTarget)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	date := parseDate("date", params.Date, vErr)
	start, end := parseDayInput("", params.Input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedule, err = s.mutate(ctx, logger, userID, func(current availability.Schedule) (availability.Schedule, error) {
		return availability.UpdateDate(current, date, params.Input.Working, start, end)
	})
	return
}

// ClearDateAvailability removes the override for a date. Clearing a date
// without an override succeeds and changes nothing.
func (s *AvailabilityService) ClearDateAvailability(ctx context.Context, params ClearDateParams) (schedule AvailabilitySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "ClearDateAvailability", params.Principal)
	defer func() {
		logOutcome(logger, err, "date override cleared", zap.String("user_id", schedule.UserID), zap.String("date", params.Date))
	}()

	userID, err := resolveTarget(params.ScheduleTarget)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	date := parseDate("date", params.Date, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedule, err = s.mutate(ctx, logger, userID, func(current availability.Schedule) (availability.Schedule, error) {
		return availability.ClearDate(current, date), nil
	})
	return
}

// UpdateDateRangeAvailability writes one entry across an inclusive span,
// optionally only on the listed weekdays.
func (s *AvailabilityService) UpdateDateRangeAvailability(ctx context.Context, params UpdateDateRangeParams) (schedule AvailabilitySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "UpdateDateRangeAvailability", params.Principal)
	defer func() {
		logOutcome(logger, err, "date range updated",
			zap.String("user_id", schedule.UserID),
			zap.String("start_date", params.StartDate),
			zap.String("end_date", params.EndDate),
			zap.Strings("days_of_week", params.DaysOfWeek),
		)
	}()

	userID, err := resolveTarget(params.ScheduleTarget)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	start, end := s.parseSpan(params.DateRange, vErr)
	days := parseDays(params.DaysOfWeek, vErr)
	startTime, endTime := parseDayInput("", params.Input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	update := availability.RangeUpdate{
		Start:     start,
		End:       end,
		Working:   params.Input.Working,
		StartTime: startTime,
		EndTime:   endTime,
		Days:      days,
	}
	schedule, err = s.mutate(ctx, logger, userID, func(current availability.Schedule) (availability.Schedule, error) {
		return availability.UpdateRange(current, update)
	})
	return
}

// ClearDateRangeAvailability removes every override inside an inclusive span.
func (s *AvailabilityService) ClearDateRangeAvailability(ctx context.Context, params ClearDateRangeParams) (schedule AvailabilitySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "ClearDateRangeAvailability", params.Principal)
	defer func() {
		logOutcome(logger, err, "date range cleared",
			zap.String("user_id", schedule.UserID),
			zap.String("start_date", params.StartDate),
			zap.String("end_date", params.EndDate),
		)
	}()

	userID, err := resolveTarget(params.ScheduleTarget)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	start, end := s.parseSpan(params.DateRange, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedule, err = s.mutate(ctx, logger, userID, func(current availability.Schedule) (availability.Schedule, error) {
		return availability.ClearRange(current, start, end)
	})
	return
}

// GenerateMonthlyFromWeekly copies the weekly pattern into overrides for a
// month (or explicit span), replacing any overrides already there.
func (s *AvailabilityService) GenerateMonthlyFromWeekly(ctx context.Context, params GenerateMonthlyParams) (schedule AvailabilitySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "GenerateMonthlyFromWeekly", params.Principal)
	defer func() {
		logOutcome(logger, err, "weekly pattern materialized", zap.String("user_id", schedule.UserID), zap.String("month", params.Month))
	}()

	userID, err := resolveTarget(params.ScheduleTarget)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	var start, end availability.Date
	if strings.TrimSpace(params.Month) != "" {
		var monthErr error
		start, end, monthErr = availability.ParseMonth(strings.TrimSpace(params.Month))
		if monthErr != nil {
			vErr.addEngine("", monthErr)
		}
	} else {
		start, end = s.parseSpan(params.DateRange, vErr)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedule, err = s.mutate(ctx, logger, userID, func(current availability.Schedule) (availability.Schedule, error) {
		return availability.GenerateFromWeekly(current, start, end)
	})
	return
}

// ClearMonthlySchedule drops every override and keeps the weekly pattern.
func (s *AvailabilityService) ClearMonthlySchedule(ctx context.Context, target ScheduleTarget) (schedule AvailabilitySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "ClearMonthlySchedule", target.Principal)
	defer func() { logOutcome(logger, err, "overrides cleared", zap.String("user_id", schedule.UserID)) }()

	userID, err := resolveTarget(target)
	if err != nil {
		return
	}

	schedule, err = s.mutate(ctx, logger, userID, func(current availability.Schedule) (availability.Schedule, error) {
		return availability.ClearOverrides(current), nil
	})
	return
}

// CheckDateTimeAvailability reports whether the target works at the instant.
func (s *AvailabilityService) CheckDateTimeAvailability(ctx context.Context, params CheckAvailabilityParams) (check AvailabilityCheck, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "CheckDateTimeAvailability", params.Principal)
	defer func() {
		logOutcome(logger, err, "availability checked", zap.String("user_id", check.UserID), zap.String("at", params.At), zap.Bool("available", check.Available))
	}()

	userID, err := resolveTarget(params.ScheduleTarget)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	at := parseInstant(params.At, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedule, err := s.loadOrCreate(ctx, logger, userID)
	if err != nil {
		return
	}
	check = AvailabilityCheck{
		UserID:    userID,
		At:        at,
		Available: availability.IsAvailableAt(schedule.Schedule, at),
	}
	return
}

// FindAvailableDeliveryPersonsOnDateTime lists the users working at the
// instant. Administrators only.
func (s *AvailabilityService) FindAvailableDeliveryPersonsOnDateTime(ctx context.Context, params FindAvailableParams) (userIDs []string, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "FindAvailableDeliveryPersonsOnDateTime", params.Principal)
	defer func() {
		logOutcome(logger, err, "available delivery persons listed", zap.String("at", params.At), zap.Int("count", len(userIDs)))
	}()

	if strings.TrimSpace(params.Principal.UserID) == "" || !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	at := parseInstant(params.At, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedules, err := s.listSchedules(ctx)
	if err != nil {
		return
	}
	userIDs = availability.FindAvailableUsers(schedules, at)
	return
}

// GetEffectiveSchedule resolves every date of a span, marking which dates
// come from an override.
func (s *AvailabilityService) GetEffectiveSchedule(ctx context.Context, params EffectiveScheduleParams) (days []availability.ResolvedDay, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "GetEffectiveSchedule", params.Principal)
	defer func() {
		logOutcome(logger, err, "effective schedule resolved", zap.String("start_date", params.StartDate), zap.Int("days", len(days)))
	}()

	userID, err := resolveTarget(params.ScheduleTarget)
	if err != nil {
		return
	}

	vErr := &ValidationError{}
	start, end := s.parseSpan(params.DateRange, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedule, err := s.loadOrCreate(ctx, logger, userID)
	if err != nil {
		return
	}
	days, err = availability.ResolveRange(schedule.Schedule, start, end)
	err = fromEngineError(err)
	return
}

// PruneOverridesBefore clears, for every schedule, the overrides dated
// before cutoff. It returns the number of schedules changed. Administrators
// only.
func (s *AvailabilityService) PruneOverridesBefore(ctx context.Context, principal Principal, cutoff availability.Date) (pruned int, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	logger := s.loggerWith(ctx, "PruneOverridesBefore", principal)
	defer func() {
		logOutcome(logger, err, "stale overrides pruned", zap.String("cutoff", cutoff.String()), zap.Int("schedules", pruned))
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	schedules, err := s.listSchedules(ctx)
	if err != nil {
		return
	}
	last := cutoff.AddDays(-1)
	for _, candidate := range schedules {
		if earliest, ok := candidate.EarliestOverride(); !ok || !earliest.Before(cutoff) {
			continue
		}
		_, err = s.mutate(ctx, logger, candidate.UserID, func(current availability.Schedule) (availability.Schedule, error) {
			earliest, ok := current.EarliestOverride()
			if !ok || !earliest.Before(cutoff) {
				return current, nil
			}
			return availability.ClearRange(current, earliest, last)
		})
		if err != nil {
			err = fmt.Errorf("prune schedule of %s: %w", candidate.UserID, err)
			return
		}
		pruned++
	}
	return
}

func (s *AvailabilityService) mutate(ctx context.Context, logger *zap.Logger, userID string, apply func(availability.Schedule) (availability.Schedule, error)) (AvailabilitySchedule, error) {
	if s.schedules == nil {
		return AvailabilitySchedule{}, errRepositoryMissing
	}

	unlock, err := s.locks.Lock(ctx, lockKey(userID))
	if err != nil {
		return AvailabilitySchedule{}, fmt.Errorf("lock schedule of %s: %w", userID, err)
	}
	defer func() {
		if unlockErr := unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			logger.Warn("failed to release schedule lock", zap.String("user_id", userID), zap.Error(unlockErr))
		}
	}()

	current, err := s.loadForUpdate(ctx, userID)
	if err != nil {
		return AvailabilitySchedule{}, err
	}

	next, err := apply(current.Schedule)
	if err != nil {
		return AvailabilitySchedule{}, fromEngineError(err)
	}
	current.Schedule = next
	current.UpdatedAt = s.now()

	saved, err := s.schedules.SaveSchedule(ctx, current)
	if err != nil {
		return AvailabilitySchedule{}, mapRepoError(fmt.Errorf("save schedule of %s: %w", userID, err))
	}
	return saved, nil
}

// loadForUpdate must run under the user's lock.
func (s *AvailabilityService) loadForUpdate(ctx context.Context, userID string) (AvailabilitySchedule, error) {
	stored, err := s.schedules.GetScheduleByUserID(ctx, userID)
	if err == nil {
		return stored, nil
	}
	if !isNotFound(err) {
		return AvailabilitySchedule{}, fmt.Errorf("load schedule of %s: %w", userID, err)
	}
	empty := availability.Empty(userID)
	empty.ID = s.idGenerator()
	return AvailabilitySchedule{Schedule: empty, CreatedAt: s.now()}, nil
}

func (s *AvailabilityService) loadOrCreate(ctx context.Context, logger *zap.Logger, userID string) (AvailabilitySchedule, error) {
	if s.schedules == nil {
		return AvailabilitySchedule{}, errRepositoryMissing
	}
	stored, err := s.schedules.GetScheduleByUserID(ctx, userID)
	if err == nil {
		return stored, nil
	}
	if !isNotFound(err) {
		return AvailabilitySchedule{}, fmt.Errorf("load schedule of %s: %w", userID, err)
	}
	logger.Debug("initializing empty schedule", zap.String("user_id", userID))
	return s.mutate(ctx, logger, userID, func(current availability.Schedule) (availability.Schedule, error) {
		return current, nil
	})
}

func (s *AvailabilityService) listSchedules(ctx context.Context) ([]availability.Schedule, error) {
	if s.schedules == nil {
		return nil, errRepositoryMissing
	}
	stored, err := s.schedules.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	out := make([]availability.Schedule, 0, len(stored))
	for _, schedule := range stored {
		out = append(out, schedule.Schedule)
	}
	return out, nil
}

func (s *AvailabilityService) parseSpan(span DateRange, vErr *ValidationError) (availability.Date, availability.Date) {
	start := parseDate("start_date", span.StartDate, vErr)
	end := parseDate("end_date", span.EndDate, vErr)
	if vErr.HasErrors() || s.maxRangeDays <= 0 || start.After(end) {
		return start, end
	}
	if start.DaysUntil(end)+1 > s.maxRangeDays {
		vErr.add("end_date", fmt.Sprintf("range must not exceed %d days", s.maxRangeDays))
	}
	return start, end
}

func resolveTarget(target ScheduleTarget) (string, error) {
	principal := target.Principal
	if strings.TrimSpace(principal.UserID) == "" {
		return "", ErrUnauthorized
	}
	userID := strings.TrimSpace(target.UserID)
	if userID == "" || userID == principal.UserID {
		return principal.UserID, nil
	}
	if !principal.IsAdmin {
		return "", ErrUnauthorized
	}
	return userID, nil
}

func lockKey(userID string) string {
	return "schedule:" + userID
}

func isNotFound(err error) bool {
	return errors.Is(err, persistence.ErrNotFound) || errors.Is(err, ErrNotFound)
}

func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
