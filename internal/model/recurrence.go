package model

import (
	"errors"
	"fmt"
	"time"
)

// Frequency is the unit a recurrence interval counts in.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

var (
	ErrInvalidFrequency  = errors.New("model: invalid frequency")
	ErrInvalidInterval   = errors.New("model: recurrence interval must be >= 1")
	ErrInvalidDayOfWeek  = errors.New("model: invalid day of week")
	ErrInvalidDayOfMonth = errors.New("model: day of month must be between 1 and 31")
)

// Schedule is the pure recurrence pattern of a rule: how often it fires and
// on which weekday or day of month. It carries no identity and no state, so
// the date math is testable against literal fixtures.
type Schedule struct {
	Frequency  Frequency
	Interval   int
	DayOfWeek  *time.Weekday // weekly rules only
	DayOfMonth *int          // monthly, quarterly and yearly rules only
}

func (s Schedule) Validate() error {
	switch s.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, s.Frequency)
	}
	if s.Interval < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, s.Interval)
	}
	if s.DayOfWeek != nil && (*s.DayOfWeek < time.Sunday || *s.DayOfWeek > time.Saturday) {
		return fmt.Errorf("%w: %d", ErrInvalidDayOfWeek, int(*s.DayOfWeek))
	}
	if s.DayOfMonth != nil && (*s.DayOfMonth < 1 || *s.DayOfMonth > 31) {
		return fmt.Errorf("%w: %d", ErrInvalidDayOfMonth, *s.DayOfMonth)
	}
	return nil
}

// NextOccurrence returns the next date the schedule fires, strictly after
// from. A weekly schedule whose from already sits on the target weekday moves
// a full interval forward instead of firing the same day again. The result is
// normalized to a day boundary in from's location.
func (s Schedule) NextOccurrence(from time.Time) time.Time {
	base := DayStart(from)
	switch s.Frequency {
	case FrequencyDaily:
		return base.AddDate(0, 0, s.Interval)
	case FrequencyWeekly:
		if s.DayOfWeek == nil {
			return base.AddDate(0, 0, s.Interval*7)
		}
		offset := (int(*s.DayOfWeek) - int(base.Weekday()) + 7) % 7
		if offset == 0 {
			offset = s.Interval * 7
		}
		return base.AddDate(0, 0, offset)
	default:
		return s.nextByMonths(base)
	}
}

func (s Schedule) nextByMonths(base time.Time) time.Time {
	months := s.Interval * s.monthStep()
	day := base.Day()
	if s.DayOfMonth != nil {
		day = *s.DayOfMonth
	}
	// Anchor at the 1st so AddDate cannot overflow a short month, then clamp
	// the requested day to the target month's length.
	y, m, _ := base.Date()
	target := time.Date(y, m, 1, 0, 0, 0, 0, base.Location()).AddDate(0, months, 0)
	ty, tm, _ := target.Date()
	if last := DaysInMonth(ty, tm); day > last {
		day = last
	}
	return time.Date(ty, tm, day, 0, 0, 0, 0, base.Location())
}

func (s Schedule) monthStep() int {
	switch s.Frequency {
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	default:
		return 1
	}
}

// DayStart truncates t to its day boundary, keeping the location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysInMonth reports the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}
