package payments

import (
	"fmt"
	"time"
)

// Schedule determines when the next sweep runs.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time { return from.Add(s.every) }

func (s intervalSchedule) String() string { return fmt.Sprintf("every %v", s.every) }

// dailySchedule fires once per day at hour:minute in UTC.
type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	from = from.UTC()
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string { return fmt.Sprintf("daily at %02d:%02d UTC", s.hour, s.minute) }

// EveryInterval runs at fixed intervals. Panics on a non-positive interval.
func EveryInterval(d time.Duration) Schedule {
	if d <= 0 {
		panic("payments: schedule interval must be positive")
	}
	return intervalSchedule{every: d}
}

// DailyAt runs once a day at the given UTC time.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

// ParseDailyAt parses "HH:MM" into a daily schedule.
func ParseDailyAt(s string) (Schedule, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return nil, fmt.Errorf("invalid daily time %q, want HH:MM: %w", s, err)
	}
	return DailyAt(t.Hour(), t.Minute()), nil
}
