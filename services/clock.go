package services

import "time"

// Clock is the engine's time source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// startOfDay truncates t to midnight UTC. All day-granularity logic (streaks,
// daily expiry, reminders) uses UTC days.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
