package constants

// SkipReason explains why a candidate produced no message this tick
type SkipReason string

// FailureKind classifies a failed candidate
type FailureKind string

const (
	SkipHabitInactive   SkipReason = "habit_inactive"
	SkipPaused          SkipReason = "paused"
	SkipNotScheduled    SkipReason = "not_scheduled_today"
	SkipOutsideWindow   SkipReason = "outside_window"
	SkipAlreadySent     SkipReason = "already_sent_today"
	SkipCompletedToday  SkipReason = "completed_today"
	SkipNothingToRemind SkipReason = "nothing_to_remind"
	SkipCancelled       SkipReason = "cancelled"
	SkipLeaseHeld       SkipReason = "lease_held"
	SkipRemindersOff    SkipReason = "reminders_disabled"
	SkipNotFreeTier     SkipReason = "not_free_tier"
	SkipNotSubscribed   SkipReason = "not_subscribed"

	FailureInvalidSchedule FailureKind = "invalid_schedule"
	FailureStoreRead       FailureKind = "store_read"
	FailureStoreWrite      FailureKind = "store_write"
	FailureDelivery        FailureKind = "delivery"
	FailureUnexpected      FailureKind = "unexpected"
)
