package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/example/delivery-availability/internal/persistence"
)

// overrideInsertBatch keeps a single INSERT well under SQLite's variable limit.
const overrideInsertBatch = 200

// AvailabilityRepository implements persistence.AvailabilityRepository using SQLite
type AvailabilityRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewAvailabilityRepository creates a new SQLite availability repository
func NewAvailabilityRepository(pool *ConnectionPool) *AvailabilityRepository {
	return &AvailabilityRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

type scheduleRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Weekly    string `db:"weekly"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

type overrideRow struct {
	ScheduleID string         `db:"schedule_id"`
	Date       string         `db:"override_date"`
	Working    bool           `db:"working"`
	StartTime  sql.NullString `db:"start_time"`
	EndTime    sql.NullString `db:"end_time"`
}

// Ping reports whether the database is reachable.
func (r *AvailabilityRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetScheduleByUserID loads the user's schedule with all of its overrides.
func (r *AvailabilityRepository) GetScheduleByUserID(ctx context.Context, userID string) (persistence.AvailabilitySchedule, error) {
	db := r.pool.DB()

	var row scheduleRow
	err := db.GetContext(ctx, &row, `
		SELECT id, user_id, weekly, created_at, updated_at
		FROM availability_schedules
		WHERE user_id = ?`, userID)
	if err != nil {
		return persistence.AvailabilitySchedule{}, r.mapper.MapError(err)
	}

	var overrides []overrideRow
	err = db.SelectContext(ctx, &overrides, `
		SELECT schedule_id, override_date, working, start_time, end_time
		FROM availability_overrides
		WHERE schedule_id = ?
		ORDER BY override_date`, row.ID)
	if err != nil {
		return persistence.AvailabilitySchedule{}, r.mapper.MapError(err)
	}

	return decodeSchedule(row, overrides)
}

// ListSchedules returns every schedule ordered by user id.
func (r *AvailabilityRepository) ListSchedules(ctx context.Context) ([]persistence.AvailabilitySchedule, error) {
	db := r.pool.DB()

	var rows []scheduleRow
	if err := db.SelectContext(ctx, &rows, `
		SELECT id, user_id, weekly, created_at, updated_at
		FROM availability_schedules
		ORDER BY user_id`); err != nil {
		return nil, r.mapper.MapError(err)
	}

	var overrides []overrideRow
	if err := db.SelectContext(ctx, &overrides, `
		SELECT schedule_id, override_date, working, start_time, end_time
		FROM availability_overrides
		ORDER BY schedule_id, override_date`); err != nil {
		return nil, r.mapper.MapError(err)
	}

	bySchedule := make(map[string][]overrideRow, len(rows))
	for _, o := range overrides {
		bySchedule[o.ScheduleID] = append(bySchedule[o.ScheduleID], o)
	}

	schedules := make([]persistence.AvailabilitySchedule, 0, len(rows))
	for _, row := range rows {
		schedule, err := decodeSchedule(row, bySchedule[row.ID])
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, nil
}

// SaveSchedule upserts the schedule row and rewrites its overrides in one
// transaction.
func (r *AvailabilityRepository) SaveSchedule(ctx context.Context, schedule persistence.AvailabilitySchedule) error {
	if schedule.ID == "" || schedule.UserID == "" {
		return fmt.Errorf("sqlite: schedule id and user id are required")
	}

	weekly, err := json.Marshal(schedule.Weekly)
	if err != nil {
		return fmt.Errorf("sqlite: encode weekly pattern: %w", err)
	}
	row := scheduleRow{
		ID:        schedule.ID,
		UserID:    schedule.UserID,
		Weekly:    string(weekly),
		CreatedAt: formatTime(schedule.CreatedAt),
		UpdatedAt: formatTime(schedule.UpdatedAt),
	}
	overrides := make([]overrideRow, 0, len(schedule.Overrides))
	for date, entry := range schedule.Overrides {
		overrides = append(overrides, overrideRow{
			ScheduleID: schedule.ID,
			Date:       date,
			Working:    entry.Working,
			StartTime:  nullString(entry.StartTime),
			EndTime:    nullString(entry.EndTime),
		})
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			var owner string
			err := tx.GetContext(ctx, &owner, `SELECT user_id FROM availability_schedules WHERE id = ?`, row.ID)
			switch {
			case err == nil && owner != row.UserID:
				return fmt.Errorf("sqlite: schedule %s belongs to %s: %w", row.ID, owner, persistence.ErrDuplicate)
			case err != nil && err != sql.ErrNoRows:
				return err
			}

			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO availability_schedules (id, user_id, weekly, created_at, updated_at)
				VALUES (:id, :user_id, :weekly, :created_at, :updated_at)
				ON CONFLICT(id) DO UPDATE SET
					weekly = excluded.weekly,
					updated_at = excluded.updated_at`, row); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM availability_overrides WHERE schedule_id = ?`, row.ID); err != nil {
				return err
			}

			for start := 0; start < len(overrides); start += overrideInsertBatch {
				end := start + overrideInsertBatch
				if end > len(overrides) {
					end = len(overrides)
				}
				if _, err := tx.NamedExecContext(ctx, `
					INSERT INTO availability_overrides (schedule_id, override_date, working, start_time, end_time)
					VALUES (:schedule_id, :override_date, :working, :start_time, :end_time)`, overrides[start:end]); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func decodeSchedule(row scheduleRow, overrides []overrideRow) (persistence.AvailabilitySchedule, error) {
	schedule := persistence.AvailabilitySchedule{
		ID:        row.ID,
		UserID:    row.UserID,
		Overrides: make(map[string]persistence.DayEntry, len(overrides)),
	}
	if err := json.Unmarshal([]byte(row.Weekly), &schedule.Weekly); err != nil {
		return persistence.AvailabilitySchedule{}, fmt.Errorf("sqlite: weekly pattern of %s: %w: %v", row.UserID, persistence.ErrCorrupt, err)
	}

	var err error
	if schedule.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return persistence.AvailabilitySchedule{}, fmt.Errorf("sqlite: created_at of %s: %w: %v", row.UserID, persistence.ErrCorrupt, err)
	}
	if schedule.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return persistence.AvailabilitySchedule{}, fmt.Errorf("sqlite: updated_at of %s: %w: %v", row.UserID, persistence.ErrCorrupt, err)
	}

	for _, o := range overrides {
		schedule.Overrides[o.Date] = persistence.DayEntry{
			Working:   o.Working,
			StartTime: stringPtr(o.StartTime),
			EndTime:   stringPtr(o.EndTime),
		}
	}
	return schedule, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}
