package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron expression
// (minute hour day-of-month month day-of-week). It implements Schedule,
// so cron-timed jobs register on the same Scheduler as interval jobs.
//
// Supported field syntax: "*", "n", "n-m", "*/s", "n-m/s", "n,m,o".
//
// Examples:
//   - "*/5 * * * *" - every 5 minutes
//   - "0 18 * * *"  - every day at 18:00
//   - "0 0 * * 0"   - every Sunday at midnight
type CronExpression struct {
	raw string

	// Each field is a bitset: bit n set means value n matches.
	minutes  uint64
	hours    uint32
	days     uint32
	months   uint16
	weekdays uint8
}

// Common schedules.
const (
	EveryHour        = "0 * * * *"
	EveryEvening     = "0 18 * * *"
	EveryDayMidnight = "0 0 * * *"
)

// ParseCronExpression parses a cron expression string.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	specs := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day", 1, 31},
		{"month", 1, 12},
		{"weekday", 0, 6},
	}

	sets := make([]uint64, 5)
	for i, spec := range specs {
		set, err := parseCronField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field %q: %w", spec.name, fields[i], err)
		}
		sets[i] = set
	}

	return &CronExpression{
		raw:      expr,
		minutes:  sets[0],
		hours:    uint32(sets[1]),
		days:     uint32(sets[2]),
		months:   uint16(sets[3]),
		weekdays: uint8(sets[4]),
	}, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for compile-time constants.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

// parseCronField parses one field into a bitset over [min, max].
func parseCronField(field string, min, max int) (uint64, error) {
	var set uint64

	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)

		step := 1
		if idx := strings.IndexByte(part, '/'); idx >= 0 {
			s, err := strconv.Atoi(part[idx+1:])
			if err != nil || s <= 0 {
				return 0, fmt.Errorf("bad step %q", part[idx+1:])
			}
			step = s
			part = part[:idx]
		}

		lo, hi := min, max
		switch {
		case part == "*":
			// full range
		case strings.Contains(part, "-"):
			bounds := strings.SplitN(part, "-", 2)
			var err error
			if lo, err = strconv.Atoi(bounds[0]); err != nil {
				return 0, fmt.Errorf("bad range start %q", bounds[0])
			}
			if hi, err = strconv.Atoi(bounds[1]); err != nil {
				return 0, fmt.Errorf("bad range end %q", bounds[1])
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return 0, fmt.Errorf("bad value %q", part)
			}
			lo, hi = v, v
			if step > 1 {
				// "n/s" means n..max with step s
				hi = max
			}
		}

		if lo < min || hi > max || lo > hi {
			return 0, fmt.Errorf("range %d-%d outside [%d, %d]", lo, hi, min, max)
		}

		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}

	if set == 0 {
		return 0, fmt.Errorf("empty field")
	}
	return set, nil
}

// String returns the original cron expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching time strictly after the given time.
// Walks forward minute by minute; bounded to one year so a malformed
// expression cannot spin forever.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)

	const maxMinutes = 366 * 24 * 60
	for i := 0; i < maxMinutes; i++ {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}

	return time.Time{}
}

// matches reports whether t satisfies every field of the expression.
func (ce *CronExpression) matches(t time.Time) bool {
	return ce.minutes&(1<<uint(t.Minute())) != 0 &&
		ce.hours&(1<<uint(t.Hour())) != 0 &&
		ce.days&(1<<uint(t.Day())) != 0 &&
		ce.months&(1<<uint(t.Month())) != 0 &&
		ce.weekdays&(1<<uint(t.Weekday())) != 0
}
