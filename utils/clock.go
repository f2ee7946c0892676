package utils

import "time"

// Clock supplies the current time so services can be tested against fixed instants
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always reports the same instant. It is meant for tests and replays.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant
func (c FixedClock) Now() time.Time {
	return c.At
}
