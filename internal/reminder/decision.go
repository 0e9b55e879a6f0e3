package reminder

import (
	"time"

	"github.com/julianstephens/habitnudge/internal/clock"
	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/models"
)

// Facts is everything the firing decision depends on.
type Facts struct {
	Now            clock.Local
	Schedule       models.HabitSchedule
	HabitActive    bool
	Paused         bool
	CompletedToday bool
}

// Decision says which reminders fire. Reason is set when neither does.
type Decision struct {
	Primary  bool
	Fallback bool
	Reason   constants.SkipReason
}

func (d Decision) Fires() bool {
	return d.Primary || d.Fallback
}

// Decide applies the firing rules in order: inactive, paused and unscheduled
// habits never fire; the primary and fallback windows are then judged
// independently. Only the hour of each reminder time is compared.
func Decide(f Facts) Decision {
	if !f.HabitActive {
		return Decision{Reason: constants.SkipHabitInactive}
	}
	if f.Paused {
		return Decision{Reason: constants.SkipPaused}
	}
	if !f.Schedule.Days.Contains(f.Now.Weekday) {
		return Decision{Reason: constants.SkipNotScheduled}
	}

	var d Decision
	primaryOpen := PrimaryWindowOpen(f.Now, f.Schedule)
	fallbackOpen := FallbackWindowOpen(f.Now, f.Schedule)

	d.Primary = primaryOpen && !sentToday(f.Now, f.Schedule.LastSentAt)
	d.Fallback = fallbackOpen && !f.CompletedToday && !sentToday(f.Now, f.Schedule.FallbackLastSentAt)

	if d.Fires() {
		return d
	}

	switch {
	case !primaryOpen && !fallbackOpen:
		d.Reason = constants.SkipOutsideWindow
	case fallbackOpen && f.CompletedToday && !sentToday(f.Now, f.Schedule.FallbackLastSentAt):
		d.Reason = constants.SkipCompletedToday
	default:
		d.Reason = constants.SkipAlreadySent
	}
	return d
}

// PrimaryWindowOpen reports whether the local hour is the reminder hour.
func PrimaryWindowOpen(now clock.Local, s models.HabitSchedule) bool {
	return now.TimeOfDay.SameHour(s.ReminderTime)
}

// FallbackWindowOpen reports whether the fallback is enabled and the local
// hour is its hour. The completion lookup is only needed while it is open.
func FallbackWindowOpen(now clock.Local, s models.HabitSchedule) bool {
	return s.FallbackEnabled && s.FallbackTime != nil && now.TimeOfDay.SameHour(*s.FallbackTime)
}

func sentToday(now clock.Local, last *time.Time) bool {
	return last != nil && now.SameDay(*last)
}
