package table

import (
	"time"

	"github.com/RussellLuo/timingwheel"
)

// Timers schedules turn clocks and idle checks for every table on one
// hierarchical timing wheel.
type Timers struct {
	tw *timingwheel.TimingWheel
}

// NewTimers creates a wheel with the given tick and number of buckets.
// Call Start before scheduling.
func NewTimers(tick time.Duration, wheelSize int64) *Timers {
	return &Timers{tw: timingwheel.NewTimingWheel(tick, wheelSize)}
}

// Start runs the wheel.
func (t *Timers) Start() {
	t.tw.Start()
}

// Stop halts the wheel. Pending callbacks never fire.
func (t *Timers) Stop() {
	t.tw.Stop()
}

// AfterFunc calls fn on its own goroutine once d has elapsed.
func (t *Timers) AfterFunc(d time.Duration, fn func()) *timingwheel.Timer {
	if d < 0 {
		d = 0
	}
	return t.tw.AfterFunc(d, fn)
}

func stopTimer(timer *timingwheel.Timer) {
	if timer != nil {
		timer.Stop()
	}
}
