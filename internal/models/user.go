package models

import (
	"strings"
	"time"
)

// Tier is a subscription level
type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierCoach Tier = "coach"
)

// ParseTier maps a stored tier to a Tier. Missing or unknown values are free.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierBasic:
		return TierBasic
	case TierCoach:
		return TierCoach
	default:
		return TierFree
	}
}

// CustomSchedules reports whether the tier may configure per-habit schedules
func (t Tier) CustomSchedules() bool {
	return t == TierBasic || t == TierCoach
}

type UserAccount struct {
	UserID                    string     `json:"user_id"`
	Timezone                  string     `json:"timezone"`
	SubscriptionTier          Tier       `json:"subscription_tier"`
	ReminderEnabled           bool       `json:"reminder_enabled"`
	DefaultReminderLastSentAt *time.Time `json:"default_reminder_last_sent_at,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	// ReadErr holds a stored field that failed to parse; only that user fails
	ReadErr error `json:"-"`
}
