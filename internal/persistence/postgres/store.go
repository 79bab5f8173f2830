// Package postgres stores availability schedules in PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/delivery-availability/internal/persistence"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Store implements persistence.AvailabilityRepository on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables when missing. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

const selectSchedule = `
	SELECT id, user_id, weekly, created_at, updated_at
	FROM availability_schedules`

const selectOverrides = `
	SELECT schedule_id, to_char(override_date, 'YYYY-MM-DD'), working, start_time, end_time
	FROM availability_overrides`

// GetScheduleByUserID loads the user's schedule with all of its overrides.
func (s *Store) GetScheduleByUserID(ctx context.Context, userID string) (persistence.AvailabilitySchedule, error) {
	schedule, err := scanSchedule(s.pool.QueryRow(ctx, selectSchedule+` WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.AvailabilitySchedule{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.AvailabilitySchedule{}, err
	}

	rows, err := s.pool.Query(ctx, selectOverrides+` WHERE schedule_id = $1`, schedule.ID)
	if err != nil {
		return persistence.AvailabilitySchedule{}, fmt.Errorf("postgres: query overrides: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		scheduleID, date, entry, err := scanOverride(rows)
		if err != nil {
			return persistence.AvailabilitySchedule{}, err
		}
		if scheduleID == schedule.ID {
			schedule.Overrides[date] = entry
		}
	}
	return schedule, rows.Err()
}

// ListSchedules returns every schedule ordered by user id.
func (s *Store) ListSchedules(ctx context.Context) ([]persistence.AvailabilitySchedule, error) {
	rows, err := s.pool.Query(ctx, selectSchedule+` ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query schedules: %w", err)
	}
	var out []persistence.AvailabilitySchedule
	index := make(map[string]int)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[schedule.ID] = len(out)
		out = append(out, schedule)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, selectOverrides)
	if err != nil {
		return nil, fmt.Errorf("postgres: query overrides: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		scheduleID, date, entry, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[scheduleID]; ok {
			out[i].Overrides[date] = entry
		}
	}
	return out, rows.Err()
}

// SaveSchedule upserts the schedule row and rewrites its overrides in one
// transaction.
func (s *Store) SaveSchedule(ctx context.Context, schedule persistence.AvailabilitySchedule) error {
	if schedule.ID == "" || schedule.UserID == "" {
		return fmt.Errorf("postgres: schedule id and user id are required")
	}
	weekly, err := json.Marshal(schedule.Weekly)
	if err != nil {
		return fmt.Errorf("postgres: encode weekly pattern: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx, `SELECT user_id FROM availability_schedules WHERE id = $1 FOR UPDATE`, schedule.ID).Scan(&owner)
		switch {
		case err == nil && owner != schedule.UserID:
			return fmt.Errorf("postgres: schedule %s belongs to %s: %w", schedule.ID, owner, persistence.ErrDuplicate)
		case err != nil && !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_schedules (id, user_id, weekly, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			   SET weekly = EXCLUDED.weekly,
			       updated_at = EXCLUDED.updated_at`,
			schedule.ID, schedule.UserID, string(weekly), schedule.CreatedAt.UTC(), schedule.UpdatedAt.UTC(),
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM availability_overrides WHERE schedule_id = $1`, schedule.ID); err != nil {
			return err
		}
		if len(schedule.Overrides) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for date, entry := range schedule.Overrides {
			batch.Queue(`
				INSERT INTO availability_overrides (schedule_id, override_date, working, start_time, end_time)
				VALUES ($1, $2::date, $3, $4, $5)`,
				schedule.ID, date, entry.Working, entry.StartTime, entry.EndTime,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return mapError(err)
}

func scanSchedule(row pgx.Row) (persistence.AvailabilitySchedule, error) {
	var (
		schedule persistence.AvailabilitySchedule
		weekly   []byte
	)
	if err := row.Scan(&schedule.ID, &schedule.UserID, &weekly, &schedule.CreatedAt, &schedule.UpdatedAt); err != nil {
		return persistence.AvailabilitySchedule{}, err
	}
	if err := json.Unmarshal(weekly, &schedule.Weekly); err != nil {
		return persistence.AvailabilitySchedule{}, fmt.Errorf("postgres: weekly pattern of %s: %w: %v", schedule.UserID, persistence.ErrCorrupt, err)
	}
	schedule.CreatedAt = schedule.CreatedAt.UTC()
	schedule.UpdatedAt = schedule.UpdatedAt.UTC()
	schedule.Overrides = make(map[string]persistence.DayEntry)
	return schedule, nil
}

func scanOverride(rows pgx.Rows) (string, string, persistence.DayEntry, error) {
	var (
		scheduleID, date string
		entry            persistence.DayEntry
	)
	if err := rows.Scan(&scheduleID, &date, &entry.Working, &entry.StartTime, &entry.EndTime); err != nil {
		return "", "", persistence.DayEntry{}, fmt.Errorf("postgres: scan override: %w", err)
	}
	return scheduleID, date, entry, nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	}
	return err
}
