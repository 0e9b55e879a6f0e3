package storage

import (
	"context"
	"time"

	"github.com/julianstephens/habitnudge/internal/models"
)

// SuppressionStore answers the pause and completion checks made per tick.
type SuppressionStore interface {
	// ListPausesActiveOn returns the pauses of a habit covering the local date (YYYY-MM-DD).
	ListPausesActiveOn(ctx context.Context, habitID, date string) ([]models.HabitPause, error)
	// HasCompletionBetween reports whether a log exists with from <= completed_at < to.
	HasCompletionBetween(ctx context.Context, habitID string, from, to time.Time) (bool, error)
}

// ScheduleStore is the read-evaluate-write-back view the tiered engine runs over.
type ScheduleStore interface {
	SuppressionStore

	// ListSchedulesForWeekday returns schedules whose day set contains wd,
	// joined with the habit's name and active flag and the owner's zone and tier.
	ListSchedulesForWeekday(ctx context.Context, wd models.Weekday) ([]models.ScheduleRow, error)
	// ListSchedulesForWeekdays returns schedules whose day set intersects wds.
	ListSchedulesForWeekdays(ctx context.Context, wds []models.Weekday) ([]models.ScheduleRow, error)
	UpdateLastSent(ctx context.Context, scheduleID string, at time.Time) error
	UpdateFallbackLastSent(ctx context.Context, scheduleID string, at time.Time) error
}

// FreeTierStore is the user source the free-tier engine runs over.
type FreeTierStore interface {
	SuppressionStore

	ListFreeUsersWithRemindersEnabled(ctx context.Context) ([]models.UserAccount, error)
	ListActiveHabits(ctx context.Context, userID string) ([]models.Habit, error)
	UpdateDefaultReminderSent(ctx context.Context, userID string, at time.Time) error
}

type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	// Open connects without the schema version check Load performs.
	Open() error
	// Migrate applies pending migrations to an existing store.
	Migrate(logFn func(string)) (int, error)
	Close() error
	Ping(ctx context.Context) error
	// SchemaVersion returns the applied and the latest known schema versions.
	SchemaVersion() (current int, latest int, err error)

	ScheduleStore
	FreeTierStore

	// Users
	AddUser(ctx context.Context, user models.UserAccount) error
	GetUser(ctx context.Context, userID string) (models.UserAccount, error)
	ListUsers(ctx context.Context) ([]models.UserAccount, error)

	// Habits
	AddHabit(ctx context.Context, habit models.Habit) error

	// Schedules
	AddSchedule(ctx context.Context, schedule models.HabitSchedule) error
	GetSchedule(ctx context.Context, id string) (models.ScheduleRow, error)
	ListAllSchedules(ctx context.Context) ([]models.ScheduleRow, error)

	// Pauses and completions
	AddPause(ctx context.Context, pause models.HabitPause) error
	AddHabitLog(ctx context.Context, log models.HabitLog) error

	// Utils
	GetConfigPath() string
}
