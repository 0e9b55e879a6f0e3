package models

import (
	"fmt"
	"strings"
	"time"
)

// HabitSchedule is the validated weekly schedule of one habit.
type HabitSchedule struct {
	ID                 string     `json:"id"`
	HabitID            string     `json:"habit_id"`
	UserID             string     `json:"user_id"`
	Days               WeekdaySet `json:"days"`
	ReminderTime       TimeOfDay  `json:"reminder_time"`
	FallbackEnabled    bool       `json:"fallback_enabled"`
	FallbackTime       *TimeOfDay `json:"fallback_time,omitempty"`
	LastSentAt         *time.Time `json:"last_sent_at,omitempty"`
	FallbackLastSentAt *time.Time `json:"fallback_last_sent_at,omitempty"`
}

// Validate checks the fallback invariant: a fallback time is set iff the
// fallback is enabled.
func (s *HabitSchedule) Validate() error {
	if s.HabitID == "" {
		return fmt.Errorf("schedule habit id cannot be empty")
	}
	if s.Days.Empty() {
		return fmt.Errorf("schedule must run on at least one weekday")
	}
	if s.FallbackEnabled && s.FallbackTime == nil {
		return fmt.Errorf("fallback enabled without a fallback time")
	}
	if !s.FallbackEnabled && s.FallbackTime != nil {
		return fmt.Errorf("fallback time set while fallback is disabled")
	}
	return nil
}

// ScheduleRow is a schedule as read from the store, joined with its habit and
// the owning user's zone. Day tokens and times are kept raw so that one
// malformed row fails on its own instead of failing the whole listing.
type ScheduleRow struct {
	ID                 string
	HabitID            string
	UserID             string
	Days               []string
	ReminderTime       string
	FallbackEnabled    bool
	FallbackTime       *string
	LastSentAt         *time.Time
	FallbackLastSentAt *time.Time
	// TimestampErr holds a sent timestamp that failed to parse
	TimestampErr error

	HabitName   string
	HabitActive bool
	Timezone    string
	Tier        Tier
}

// Schedule parses the raw row into a HabitSchedule.
func (r ScheduleRow) Schedule() (HabitSchedule, error) {
	if r.TimestampErr != nil {
		return HabitSchedule{}, fmt.Errorf("schedule %s: %w", r.ID, r.TimestampErr)
	}

	days, err := ParseWeekdaySet(r.Days)
	if err != nil {
		return HabitSchedule{}, fmt.Errorf("schedule %s: %w", r.ID, err)
	}

	reminder, err := ParseTimeOfDay(r.ReminderTime)
	if err != nil {
		return HabitSchedule{}, fmt.Errorf("schedule %s: reminder_time: %w", r.ID, err)
	}

	s := HabitSchedule{
		ID:                 r.ID,
		HabitID:            r.HabitID,
		UserID:             r.UserID,
		Days:               days,
		ReminderTime:       reminder,
		FallbackEnabled:    r.FallbackEnabled,
		LastSentAt:         r.LastSentAt,
		FallbackLastSentAt: r.FallbackLastSentAt,
	}

	// A fallback time left on a disabled fallback is ignored, see Warnings
	if r.FallbackEnabled && r.hasFallbackTime() {
		ft, err := ParseTimeOfDay(*r.FallbackTime)
		if err != nil {
			return HabitSchedule{}, fmt.Errorf("schedule %s: fallback_time: %w", r.ID, err)
		}
		s.FallbackTime = &ft
	}

	if err := s.Validate(); err != nil {
		return HabitSchedule{}, fmt.Errorf("schedule %s: %w", r.ID, err)
	}
	return s, nil
}

func (r ScheduleRow) hasFallbackTime() bool {
	return r.FallbackTime != nil && strings.TrimSpace(*r.FallbackTime) != ""
}

// Warnings lists row problems that do not stop the schedule from running.
func (r ScheduleRow) Warnings() []string {
	var out []string
	if !r.FallbackEnabled && r.hasFallbackTime() {
		out = append(out, fmt.Sprintf("schedule %s: fallback_time %q is set while the fallback is disabled and is ignored", r.ID, *r.FallbackTime))
	}
	if !r.Tier.CustomSchedules() {
		out = append(out, fmt.Sprintf("schedule %s: owner %s is on the %s tier, so only the daily digest is sent", r.ID, r.UserID, r.Tier))
	}
	return out
}
