package scheduler

import "time"

// IntervalSchedule runs a job a fixed duration after each completion. Unlike
// a cron expression it is not anchored to the wall clock, so runs drift with
// job duration.
type IntervalSchedule struct {
	every time.Duration
}

// NewIntervalSchedule builds a schedule that fires every interval.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{every: interval}
}

// Next returns one interval past t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.every.String()
}
