package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/habitnudge/internal/errors"
	"github.com/julianstephens/habitnudge/internal/models"
	"github.com/julianstephens/habitnudge/internal/storage"
)

// TIME columns are read as text so lib/pq does not turn them into timestamps.
const scheduleColumns = `
	s.id, s.habit_id, s.user_id, s.days, s.reminder_time::text,
	s.fallback_enabled, s.fallback_time::text, s.last_sent_at, s.fallback_last_sent_at,
	h.name, h.is_active, u.timezone, u.subscription_tier`

const scheduleJoin = `
	FROM habit_schedules s
	JOIN habits h ON h.id = s.habit_id
	JOIN users u ON u.user_id = s.user_id`

func (s *Store) AddSchedule(ctx context.Context, schedule models.HabitSchedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	if schedule.ID == "" {
		schedule.ID = storage.NewID()
	}

	var fallbackTime *string
	if schedule.FallbackTime != nil {
		ft := schedule.FallbackTime.String()
		fallbackTime = &ft
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_schedules (
			id, habit_id, user_id, days, reminder_time,
			fallback_enabled, fallback_time, last_sent_at, fallback_last_sent_at
		) VALUES ($1, $2, $3, $4, $5::time, $6, $7::time, $8, $9)
	`,
		schedule.ID, schedule.HabitID, schedule.UserID, pq.Array(schedule.Days.Tokens()), schedule.ReminderTime.String(),
		schedule.FallbackEnabled, fallbackTime, schedule.LastSentAt, schedule.FallbackLastSentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	return nil
}

func (s *Store) GetSchedule(ctx context.Context, id string) (models.ScheduleRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+scheduleJoin+` WHERE s.id = $1`, id)
	r, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return models.ScheduleRow{}, fmt.Errorf("schedule %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return models.ScheduleRow{}, fmt.Errorf("failed to get schedule: %w", err)
	}
	return r, nil
}

func (s *Store) ListAllSchedules(ctx context.Context) ([]models.ScheduleRow, error) {
	return s.querySchedules(ctx, `SELECT `+scheduleColumns+scheduleJoin+` ORDER BY s.id`)
}

func (s *Store) ListSchedulesForWeekday(ctx context.Context, wd models.Weekday) ([]models.ScheduleRow, error) {
	return s.ListSchedulesForWeekdays(ctx, []models.Weekday{wd})
}

func (s *Store) ListSchedulesForWeekdays(ctx context.Context, wds []models.Weekday) ([]models.ScheduleRow, error) {
	tokens := storage.WeekdayTokens(wds)
	if len(tokens) == 0 {
		return nil, nil
	}

	return s.querySchedules(ctx,
		`SELECT `+scheduleColumns+scheduleJoin+` WHERE s.days && $1::text[] ORDER BY s.id`,
		pq.Array(tokens),
	)
}

func (s *Store) querySchedules(ctx context.Context, query string, args ...interface{}) ([]models.ScheduleRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.ScheduleRow
	for rows.Next() {
		r, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

func scanSchedule(row rowScanner) (models.ScheduleRow, error) {
	var r models.ScheduleRow
	var days pq.StringArray
	var fallbackTime sql.NullString
	var lastSent, fallbackLastSent sql.NullTime
	var tier string

	err := row.Scan(
		&r.ID, &r.HabitID, &r.UserID, &days, &r.ReminderTime,
		&r.FallbackEnabled, &fallbackTime, &lastSent, &fallbackLastSent,
		&r.HabitName, &r.HabitActive, &r.Timezone, &tier,
	)
	if err != nil {
		return models.ScheduleRow{}, err
	}

	r.Days = []string(days)
	if fallbackTime.Valid {
		ft := fallbackTime.String
		r.FallbackTime = &ft
	}
	r.LastSentAt = timePtr(lastSent)
	r.FallbackLastSentAt = timePtr(fallbackLastSent)
	r.Tier = models.ParseTier(tier)

	return r, nil
}

func (s *Store) UpdateLastSent(ctx context.Context, scheduleID string, at time.Time) error {
	return s.touchSchedule(ctx, "last_sent_at", scheduleID, at)
}

func (s *Store) UpdateFallbackLastSent(ctx context.Context, scheduleID string, at time.Time) error {
	return s.touchSchedule(ctx, "fallback_last_sent_at", scheduleID, at)
}

func (s *Store) touchSchedule(ctx context.Context, column, scheduleID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE habit_schedules SET `+column+` = $1 WHERE id = $2`,
		at.UTC(), scheduleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("schedule %s: %w", scheduleID, errors.ErrNotFound)
	}

	return nil
}
