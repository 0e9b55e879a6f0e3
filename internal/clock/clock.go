// Package clock resolves a user's stored zone name and a UTC instant into
// local calendar date and wall-clock time.
package clock

import (
	"strings"
	"sync"
	"time"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/errors"
	"github.com/julianstephens/habitnudge/internal/models"
)

// Local is an instant seen from one user's zone.
type Local struct {
	Time      time.Time
	Date      string // YYYY-MM-DD in the resolved zone
	Weekday   models.Weekday
	TimeOfDay models.TimeOfDay
	Location  *time.Location

	// Fallback is set when the stored zone could not be loaded and UTC was used
	Fallback bool
	Err      error
}

var locations sync.Map // zone name -> *time.Location

// LoadLocation loads an IANA zone. Empty means UTC. "Local" is rejected so the
// server's own zone never leaks into a user's evaluation.
func LoadLocation(zone string) (*time.Location, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" || zone == constants.DefaultTimezone {
		return time.UTC, nil
	}
	if cached, ok := locations.Load(zone); ok {
		return cached.(*time.Location), nil
	}
	if zone == "Local" {
		return nil, &errors.TimeZoneError{Zone: zone, Err: errors.New("server-local zone is not allowed")}
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, &errors.TimeZoneError{Zone: zone, Err: err}
	}
	locations.Store(zone, loc)
	return loc, nil
}

// Resolve never fails: an unloadable zone yields UTC with Fallback and Err set.
func Resolve(zone string, now time.Time) Local {
	loc, err := LoadLocation(zone)
	if err != nil {
		l := At(now, time.UTC)
		l.Fallback = true
		l.Err = err
		return l
	}
	return At(now, loc)
}

// At views now in loc.
func At(now time.Time, loc *time.Location) Local {
	t := now.In(loc)
	return Local{
		Time:      t,
		Date:      t.Format(constants.DateFormat),
		Weekday:   models.FromTimeWeekday(t.Weekday()),
		TimeOfDay: models.TimeOfDayOf(t),
		Location:  loc,
	}
}

// DayBounds returns local midnight of the current day and of the next day,
// both in UTC. Computed with calendar arithmetic so DST days stay correct.
func (l Local) DayBounds() (time.Time, time.Time) {
	y, m, d := l.Time.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, l.Location)
	end := time.Date(y, m, d+1, 0, 0, 0, 0, l.Location)
	return start.UTC(), end.UTC()
}

// SameDay reports whether t falls on the same local calendar date.
func (l Local) SameDay(t time.Time) bool {
	return t.In(l.Location).Format(constants.DateFormat) == l.Date
}

// CandidateWeekdays returns the weekdays any zone can be in at the UTC instant.
// UTC offsets stay within -12h..+14h, so the local weekday is the UTC weekday or
// one of its neighbours.
func CandidateWeekdays(now time.Time) []models.Weekday {
	wd := models.FromTimeWeekday(now.UTC().Weekday())
	return []models.Weekday{wd.Prev(), wd, wd.Next()}
}
