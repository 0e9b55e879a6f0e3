package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weekday is one of the seven day tokens stored on a schedule (Mon..Sun).
type Weekday uint8

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayTokens = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// AllWeekdays lists the days in schedule order
var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// String returns the stored token ("Mon", "Tue", ...)
func (d Weekday) String() string {
	if int(d) < len(weekdayTokens) {
		return weekdayTokens[d]
	}
	return fmt.Sprintf("Weekday(%d)", uint8(d))
}

// Valid reports whether d is one of the seven days
func (d Weekday) Valid() bool {
	return int(d) < len(weekdayTokens)
}

// Next returns the following day, wrapping Sunday to Monday
func (d Weekday) Next() Weekday {
	return (d + 1) % 7
}

// Prev returns the preceding day, wrapping Monday to Sunday
func (d Weekday) Prev() Weekday {
	return (d + 6) % 7
}

// FromTimeWeekday converts a time.Weekday (Sunday=0) into a Weekday (Monday=0).
func FromTimeWeekday(wd time.Weekday) Weekday {
	return Weekday((int(wd) + 6) % 7)
}

// ParseWeekday accepts the three-letter token, the full English name or the
// lowercase variants of either.
func ParseWeekday(s string) (Weekday, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	for i, t := range weekdayTokens {
		full := strings.ToLower(time.Weekday((i + 1) % 7).String())
		if token == strings.ToLower(t) || token == full {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("invalid weekday: %q", s)
}

// WeekdaySet is a bitmask over the seven days.
type WeekdaySet uint8

// NewWeekdaySet builds a set from the given days
func NewWeekdaySet(days ...Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

// ParseWeekdaySet parses stored tokens. An unknown token fails the whole set.
func ParseWeekdaySet(tokens []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, tok := range tokens {
		d, err := ParseWeekday(tok)
		if err != nil {
			return 0, err
		}
		s = s.Add(d)
	}
	return s, nil
}

// Add returns the set with d included
func (s WeekdaySet) Add(d Weekday) WeekdaySet {
	if !d.Valid() {
		return s
	}
	return s | 1<<d
}

// Contains reports whether d is in the set
func (s WeekdaySet) Contains(d Weekday) bool {
	return d.Valid() && s&(1<<d) != 0
}

// Empty reports whether no day is set
func (s WeekdaySet) Empty() bool {
	return s&0x7f == 0
}

// Days returns the members in Monday-first order
func (s WeekdaySet) Days() []Weekday {
	var days []Weekday
	for _, d := range AllWeekdays {
		if s.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

// Tokens returns the stored representation of the set
func (s WeekdaySet) Tokens() []string {
	days := s.Days()
	tokens := make([]string, len(days))
	for i, d := range days {
		tokens[i] = d.String()
	}
	return tokens
}

func (s WeekdaySet) String() string {
	return strings.Join(s.Tokens(), ",")
}

// MarshalJSON encodes the set as a token array, the shape stored in SQLite
func (s WeekdaySet) MarshalJSON() ([]byte, error) {
	tokens := s.Tokens()
	if tokens == nil {
		tokens = []string{}
	}
	return json.Marshal(tokens)
}

func (s *WeekdaySet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	parsed, err := ParseWeekdaySet(tokens)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
