package generic

import (
	"math"
	"time"
)

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock supplies "now" for end times and receipt timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// =============================================================================
// TIME UTILITIES
// =============================================================================

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func DaysBetween(from, to time.Time) int {
	return int(math.Round(StartOfDay(to).Sub(StartOfDay(from)).Hours() / 24))
}
