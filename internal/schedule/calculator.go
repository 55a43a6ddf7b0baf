package schedule

import (
	"time"

	"github.com/stacklok/connsync/internal/clock"
)

// Calculator computes the wait before the next run of a connection
type Calculator struct {
	clock clock.Clock
}

// NewCalculator creates a calculator reading time from c
func NewCalculator(c clock.Clock) *Calculator {
	return &Calculator{clock: c}
}

// TimeToWait returns how long to wait before the connection is eligible to run.
//
// lastRunStart is the start (or creation, if it never started) of the connection's last
// job, nil when the connection never ran. Inactive connections and manual schedules wait
// Forever. A connection that never ran is eligible immediately.
func (c *Calculator) TimeToWait(d Descriptor, active bool, lastRunStart *time.Time) (time.Duration, error) {
	if !active || d.Type == TypeManual {
		return Forever, nil
	}

	if err := d.Validate(); err != nil {
		return 0, err
	}

	if lastRunStart == nil {
		return 0, nil
	}

	now := c.clock.Now()
	next, err := c.nextRun(d, *lastRunStart, now)
	if err != nil {
		return 0, err
	}

	return max(0, next.Sub(now)), nil
}

// NextRun returns the time the connection becomes eligible to run.
// The boolean is false when the schedule never fires on its own.
func (c *Calculator) NextRun(d Descriptor, active bool, lastRunStart *time.Time) (time.Time, bool, error) {
	wait, err := c.TimeToWait(d, active, lastRunStart)
	if err != nil {
		return time.Time{}, false, err
	}
	if wait == Forever {
		return time.Time{}, false, nil
	}
	return c.clock.Now().Add(wait), true, nil
}

func (*Calculator) nextRun(d Descriptor, lastRunStart, now time.Time) (time.Time, error) {
	switch d.Type {
	case TypeBasic:
		interval, err := d.Interval()
		if err != nil {
			return time.Time{}, err
		}
		return lastRunStart.Add(interval), nil
	case TypeCron:
		sched, loc, err := d.cronSchedule()
		if err != nil {
			return time.Time{}, err
		}
		earliest := now
		if debounced := lastRunStart.Add(MinCronInterval); debounced.After(earliest) {
			earliest = debounced
		}
		// Next returns the first activation strictly after its argument; stepping back one
		// nanosecond makes a fire time equal to earliest eligible.
		return sched.Next(earliest.In(loc).Add(-time.Nanosecond)).UTC(), nil
	default:
		return time.Time{}, d.Validate()
	}
}
