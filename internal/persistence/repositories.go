package persistence

import "context"

// AvailabilityRepository stores one availability aggregate per user.
//
// SaveSchedule replaces the whole aggregate: the stored weekly pattern and
// override set become exactly what was passed in. It does not merge with
// what is already stored, so callers must serialize writers per user.
type AvailabilityRepository interface {
	GetScheduleByUserID(ctx context.Context, userID string) (AvailabilitySchedule, error)
	SaveSchedule(ctx context.Context, schedule AvailabilitySchedule) error
	ListSchedules(ctx context.Context) ([]AvailabilitySchedule, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
