package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContains(t *testing.T) {
	s := Schedule{FromHour: 8, ToHour: 18, Weekdays: []int{0, 1, 2, 3, 4}}

	// 2024-01-01 is a Monday.
	monday := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.Local) }
	saturday := time.Date(2024, 1, 6, 12, 0, 0, 0, time.Local)

	assert.True(t, s.Contains(monday(8, 0)))
	assert.True(t, s.Contains(monday(17, 59)))
	assert.False(t, s.Contains(monday(18, 0)))
	assert.False(t, s.Contains(monday(7, 59)))
	assert.False(t, s.Contains(saturday))
}

func TestWeekday(t *testing.T) {
	assert.Equal(t, 0, Weekday(time.Monday))
	assert.Equal(t, 5, Weekday(time.Saturday))
	assert.Equal(t, 6, Weekday(time.Sunday))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name string
		s    Schedule
	}{
		{"inverted", Schedule{FromHour: 18, ToHour: 8}},
		{"equal", Schedule{FromHour: 10, ToHour: 10}},
		{"hour out of range", Schedule{FromHour: 0, ToHour: 24}},
		{"bad weekday", Schedule{FromHour: 1, ToHour: 2, Weekdays: []int{7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.s.Validate(), ErrInvalidSchedule)
		})
	}
}
