// Package schedule decides whether a moment falls into the active
// monitoring window. Weekdays are numbered from Monday (0) to Sunday (6).
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

type Schedule struct {
	FromHour int   `yaml:"from_hour" json:"from_hour"`
	ToHour   int   `yaml:"to_hour" json:"to_hour"`
	Weekdays []int `yaml:"weekdays" json:"weekdays"`
}

// Default is 8:00 to 18:00 on every day of the week.
func Default() Schedule {
	return Schedule{FromHour: 8, ToHour: 18, Weekdays: []int{0, 1, 2, 3, 4, 5, 6}}
}

func (s Schedule) Validate() error {
	if s.FromHour < 0 || s.FromHour > 23 || s.ToHour < 0 || s.ToHour > 23 {
		return fmt.Errorf("%w: hours must be within [0, 23]", ErrInvalidSchedule)
	}
	if s.FromHour >= s.ToHour {
		return fmt.Errorf("%w: from_hour %d must be before to_hour %d", ErrInvalidSchedule, s.FromHour, s.ToHour)
	}
	for _, d := range s.Weekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidSchedule, d)
		}
	}
	return nil
}

// Weekday converts a time.Weekday to the Monday-based index.
func Weekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Contains reports whether t is on an enabled weekday and within [from, to).
func (s Schedule) Contains(t time.Time) bool {
	if !lo.Contains(s.Weekdays, Weekday(t.Weekday())) {
		return false
	}
	h := t.Hour()
	return s.FromHour <= h && h < s.ToHour
}
