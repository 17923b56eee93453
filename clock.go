package rda

import "time"

// =====================================
// Time Source
// =====================================

// Clock abstracts wall time and sleeping so retry schedules and probe
// timestamps stay deterministic under test.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the real wall clock
func SystemClock() Clock {
	return systemClock{}
}
