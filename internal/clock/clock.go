// Package clock abstracts time so commands and lifecycle timestamps are
// deterministic under test.
package clock

import "time"

// Clock supplies the current instant for timestamps and lifecycle events.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, always UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant. Useful for tests.
type Fixed struct {
	Instant time.Time
}

func (f Fixed) Now() time.Time { return f.Instant }
