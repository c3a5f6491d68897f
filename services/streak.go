package services

import (
	"math"
	"time"
)

// NextStreak returns the streak after a completion at now, given the user's last
// active day. Days are UTC days.
//
//	no prior activity -> 1
//	same day          -> unchanged (at least 1)
//	next day          -> +1
//	gap > 1 day       -> reset to 1
func NextStreak(current int, lastActivity *time.Time, now time.Time) int {
	if lastActivity == nil {
		return 1
	}
	gap := int(startOfDay(now).Sub(startOfDay(*lastActivity)).Hours() / 24)
	switch {
	case gap <= 0:
		if current < 1 {
			return 1
		}
		return current
	case gap == 1:
		return current + 1
	default:
		return 1
	}
}

// StreakMultiplier is the point multiplier for a streak length.
func StreakMultiplier(streak int) float64 {
	switch {
	case streak > 30:
		return 1.5
	case streak > 7:
		return 1.25
	case streak > 3:
		return 1.1
	default:
		return 1.0
	}
}

// PointsFor applies the streak multiplier to a task's base points.
func PointsFor(basePoints int64, streak int) int64 {
	return int64(math.Round(float64(basePoints) * StreakMultiplier(streak)))
}
