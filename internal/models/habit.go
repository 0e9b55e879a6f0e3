package models

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitnudge/internal/constants"
)

// FrequencyDaily is the only frequency habits carry; schedule days drive cadence.
const FrequencyDaily = "daily"

type Habit struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Frequency string    `json:"frequency"`
	CreatedAt time.Time `json:"created_at"`
}

// HabitPause suspends a habit's reminders between two local dates, inclusive.
type HabitPause struct {
	ID        string    `json:"id"`
	HabitID   string    `json:"habit_id"`
	UserID    string    `json:"user_id"`
	StartDate string    `json:"start_date"` // YYYY-MM-DD
	EndDate   string    `json:"end_date"`   // YYYY-MM-DD
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *HabitPause) Validate() error {
	start, err := time.Parse(constants.DateFormat, p.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date (expected YYYY-MM-DD): %w", err)
	}
	end, err := time.Parse(constants.DateFormat, p.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date (expected YYYY-MM-DD): %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("pause ends before it starts: %s < %s", p.EndDate, p.StartDate)
	}
	return nil
}

// Covers reports whether the local date (YYYY-MM-DD) falls inside the pause.
// ISO dates compare correctly as strings.
func (p *HabitPause) Covers(date string) bool {
	return p.StartDate <= date && date <= p.EndDate
}

// HabitLog records one completion.
type HabitLog struct {
	ID          string    `json:"id"`
	HabitID     string    `json:"habit_id"`
	UserID      string    `json:"user_id"`
	CompletedAt time.Time `json:"completed_at"`
	StreakCount int       `json:"streak_count"`
}
