// Package memory provides an in-process availability store for tests and
// single-node development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/delivery-availability/internal/persistence"
)

// Store keeps one schedule per user in a map guarded by an RWMutex.
type Store struct {
	mu     sync.RWMutex
	byUser map[string]persistence.AvailabilitySchedule
}

// New returns an empty Store.
func New() *Store {
	return &Store{byUser: make(map[string]persistence.AvailabilitySchedule)}
}

// Close releases resources held by the store. No-op.
func (s *Store) Close() error {
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// GetScheduleByUserID returns a copy of the user's schedule.
func (s *Store) GetScheduleByUserID(ctx context.Context, userID string) (persistence.AvailabilitySchedule, error) {
	if err := ctx.Err(); err != nil {
		return persistence.AvailabilitySchedule{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.byUser[userID]
	if !ok {
		return persistence.AvailabilitySchedule{}, persistence.ErrNotFound
	}
	return schedule.Clone(), nil
}

// SaveSchedule replaces the user's schedule. A schedule id may only ever
// belong to one user.
func (s *Store) SaveSchedule(ctx context.Context, schedule persistence.AvailabilitySchedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if schedule.ID == "" || schedule.UserID == "" {
		return fmt.Errorf("memory: schedule id and user id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byUser[schedule.UserID]; ok && existing.ID != schedule.ID {
		return fmt.Errorf("memory: user %s already has schedule %s: %w", schedule.UserID, existing.ID, persistence.ErrDuplicate)
	}
	for userID, existing := range s.byUser {
		if existing.ID == schedule.ID && userID != schedule.UserID {
			return fmt.Errorf("memory: schedule %s belongs to %s: %w", schedule.ID, userID, persistence.ErrDuplicate)
		}
	}

	s.byUser[schedule.UserID] = schedule.Clone()
	return nil
}

// ListSchedules returns every schedule ordered by user id.
func (s *Store) ListSchedules(ctx context.Context) ([]persistence.AvailabilitySchedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules := make([]persistence.AvailabilitySchedule, 0, len(s.byUser))
	for _, schedule := range s.byUser {
		schedules = append(schedules, schedule.Clone())
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].UserID < schedules[j].UserID })
	return schedules, nil
}
