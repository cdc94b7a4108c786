package util

import "time"

// Clock abstracts wall time so order and event timestamps are
// deterministic under test.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns T. Tests pin order timestamps with it.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
