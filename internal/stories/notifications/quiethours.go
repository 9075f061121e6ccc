package notifications

import (
	"fmt"
	"time"
)

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate checks the clock values and the timezone name.
func (q QuietHours) Validate() error {
	if _, err := parseClock(q.Start); err != nil {
		return err
	}
	if _, err := parseClock(q.End); err != nil {
		return err
	}
	if _, err := time.LoadLocation(q.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q", q.Timezone)
	}
	return nil
}

// Contains reports whether now, seen in the configured timezone, falls in [Start, End).
// A window whose end is before its start wraps midnight. Start == End is an empty window.
func (q QuietHours) Contains(now time.Time) (bool, error) {
	if !q.Enabled {
		return false, nil
	}

	start, err := parseClock(q.Start)
	if err != nil {
		return false, err
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false, err
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return false, fmt.Errorf("invalid timezone %q", q.Timezone)
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start <= end {
		return minute >= start && minute < end, nil
	}
	return minute >= start || minute < end, nil
}
