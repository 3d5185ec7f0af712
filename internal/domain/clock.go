package domain

import "github.com/jonboulle/clockwork"

// clock stamps agent samples. Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used by Now. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time from the package clock in UTC.
func Now() Timestamp {
	return Timestamp(clock.Now().UTC())
}
