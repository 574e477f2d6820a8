package device

import "time"

// Cancel stops a scheduled function. It reports whether the call prevented the function
// from running.
type Cancel func() bool

type Scheduler interface {
  Schedule(d time.Duration, fn func()) Cancel
}

// SystemScheduler runs scheduled functions on wall-clock timers.
type SystemScheduler struct{}

func (SystemScheduler) Schedule(d time.Duration, fn func()) Cancel {
  return time.AfterFunc(d, fn).Stop
}
