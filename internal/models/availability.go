package models

import (
	"fmt"
	"time"
)

// AvailabilityWindow is a recurring weekly interval in which a student can meet.
// Times are minutes from midnight; the interval is half-open [start, end), so a
// window ending at 14:00 does not collide with one starting at 14:00.
type AvailabilityWindow struct {
	Day         int `db:"day_of_week" json:"day"`
	StartMinute int `db:"start_minute" json:"start_minute"`
	EndMinute   int `db:"end_minute" json:"end_minute"`
}

const minutesPerDay = 24 * 60

// Validate reports whether the window is well formed.
func (w AvailabilityWindow) Validate() error {
	if w.Day < 0 || w.Day > 6 {
		return fmt.Errorf("day %d out of range 0-6", w.Day)
	}
	if w.StartMinute < 0 || w.EndMinute > minutesPerDay {
		return fmt.Errorf("window %s outside a single day", w)
	}
	if w.StartMinute >= w.EndMinute {
		return fmt.Errorf("window %s has non-positive length", w)
	}
	return nil
}

// Overlaps reports whether two windows share any time, using half-open
// interval semantics on the same day.
func (w AvailabilityWindow) Overlaps(other AvailabilityWindow) bool {
	if w.Day != other.Day {
		return false
	}
	return w.StartMinute < other.EndMinute && other.StartMinute < w.EndMinute
}

// Duration returns the window length.
func (w AvailabilityWindow) Duration() time.Duration {
	return time.Duration(w.EndMinute-w.StartMinute) * time.Minute
}

// String renders the window as "DAY HH:MM-HH:MM" for logs and diagnostics.
func (w AvailabilityWindow) String() string {
	return fmt.Sprintf("%s %s-%s", DayName(w.Day), ClockString(w.StartMinute), ClockString(w.EndMinute))
}

var dayNames = [7]string{"SUNDAY", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY"}

// DayName maps a 0-6 day index to its uppercase English name.
func DayName(day int) string {
	if day < 0 || day > 6 {
		return "UNKNOWN"
	}
	return dayNames[day]
}

// ClockString formats minutes from midnight as HH:MM.
func ClockString(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ParseClock converts an HH:MM string into minutes from midnight.
func ParseClock(raw string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock %q out of range", raw)
	}
	return h*60 + m, nil
}
