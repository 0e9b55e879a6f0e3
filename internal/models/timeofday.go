package models

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitnudge/internal/constants"
)

// TimeOfDay is a local wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// NewTimeOfDay validates the components and returns the time
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("hour out of range: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("minute out of range: %d", minute)
	}
	if second < 0 || second > 59 {
		return TimeOfDay{}, fmt.Errorf("second out of range: %d", second)
	}
	return TimeOfDay{Hour: hour, Minute: minute, Second: second}, nil
}

// ParseTimeOfDay parses HH:MM:SS or HH:MM.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{constants.TimeFormat, constants.ShortTimeFormat} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day (expected HH:MM:SS or HH:MM): %q", s)
}

// TimeOfDayOf returns the wall-clock part of t in t's location
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// SameHour reports whether both times fall in the same clock hour.
// Reminders compare hours only.
func (t TimeOfDay) SameHour(other TimeOfDay) bool {
	return t.Hour == other.Hour
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}
