package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock stamps ResultsTable.CreatedAt.
var clock = clockwork.NewRealClock()

// SetClock replaces the clock used for run timestamps. nil restores the real
// clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}

// Now returns the current run timestamp in UTC.
func Now() time.Time {
	return clock.Now().UTC()
}
