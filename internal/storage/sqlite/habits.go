package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/habitnudge/internal/logger"
	"github.com/julianstephens/habitnudge/internal/models"
	"github.com/julianstephens/habitnudge/internal/storage"
)

func (s *Store) AddHabit(ctx context.Context, habit models.Habit) error {
	if habit.Name == "" {
		return fmt.Errorf("habit name cannot be empty")
	}
	if habit.ID == "" {
		habit.ID = storage.NewID()
	}
	if habit.Frequency == "" {
		habit.Frequency = models.FrequencyDaily
	}
	if habit.CreatedAt.IsZero() {
		habit.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habits (id, user_id, name, is_active, frequency, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, habit.ID, habit.UserID, habit.Name, habit.IsActive, habit.Frequency, formatTime(habit.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert habit: %w", err)
	}
	return nil
}

func (s *Store) ListActiveHabits(ctx context.Context, userID string) ([]models.Habit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, is_active, frequency, created_at
		FROM habits
		WHERE user_id = ? AND is_active = 1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		var h models.Habit
		var createdAt string
		if err := rows.Scan(&h.ID, &h.UserID, &h.Name, &h.IsActive, &h.Frequency, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		// created_at only orders the digest
		if h.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			logger.Warn("Unparsable habit created_at", "habit_id", h.ID, "value", createdAt)
		}
		habits = append(habits, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habits: %w", err)
	}

	return habits, nil
}

func (s *Store) AddPause(ctx context.Context, pause models.HabitPause) error {
	if err := pause.Validate(); err != nil {
		return err
	}
	if pause.ID == "" {
		pause.ID = storage.NewID()
	}
	if pause.CreatedAt.IsZero() {
		pause.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_pauses (id, habit_id, user_id, start_date, end_date, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pause.ID, pause.HabitID, pause.UserID, pause.StartDate, pause.EndDate, pause.Reason, formatTime(pause.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert pause: %w", err)
	}
	return nil
}

func (s *Store) ListPausesActiveOn(ctx context.Context, habitID, date string) ([]models.HabitPause, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, habit_id, user_id, start_date, end_date, reason, created_at
		FROM habit_pauses
		WHERE habit_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date
	`, habitID, date, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query pauses: %w", err)
	}
	defer rows.Close()

	var pauses []models.HabitPause
	for rows.Next() {
		var p models.HabitPause
		var createdAt string
		if err := rows.Scan(&p.ID, &p.HabitID, &p.UserID, &p.StartDate, &p.EndDate, &p.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pause: %w", err)
		}
		if p.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			logger.Warn("Unparsable pause created_at", "pause_id", p.ID, "value", createdAt)
		}
		pauses = append(pauses, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pauses: %w", err)
	}

	return pauses, nil
}

func (s *Store) AddHabitLog(ctx context.Context, log models.HabitLog) error {
	if log.ID == "" {
		log.ID = storage.NewID()
	}
	if log.CompletedAt.IsZero() {
		return fmt.Errorf("habit log completed_at cannot be zero")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_logs (id, habit_id, user_id, completed_at, streak_count)
		VALUES (?, ?, ?, ?, ?)
	`, log.ID, log.HabitID, log.UserID, formatTime(log.CompletedAt), log.StreakCount)
	if err != nil {
		return fmt.Errorf("failed to insert habit log: %w", err)
	}
	return nil
}

func (s *Store) HasCompletionBetween(ctx context.Context, habitID string, from, to time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM habit_logs
			WHERE habit_id = ?
			  AND julianday(completed_at) >= julianday(?)
			  AND julianday(completed_at) < julianday(?)
		)
	`, habitID, formatTime(from), formatTime(to)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query completions: %w", err)
	}
	return exists, nil
}
