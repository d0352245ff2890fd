package monitor

import (
	"time"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

// DefaultSequenceWindow is the largest gap between two events of the
// same sequence.
const DefaultSequenceWindow = 5 * time.Second

// eventSequence accumulates temporally adjacent events. It is owned by
// the monitor goroutine.
type eventSequence struct {
	events []models.Event
	lastAt time.Time
}

func (s *eventSequence) Add(ev models.Event, at time.Time) {
	s.events = append(s.events, ev)
	s.lastAt = at
}

func (s *eventSequence) Len() int {
	return len(s.events)
}

// Expired reports whether the sequence is non-empty and no event was
// added for longer than window.
func (s *eventSequence) Expired(now time.Time, window time.Duration) bool {
	return len(s.events) > 0 && now.Sub(s.lastAt) > window
}

// Flush returns the accumulated events and resets the sequence.
func (s *eventSequence) Flush() []models.Event {
	events := s.events
	s.events = nil
	s.lastAt = time.Time{}
	return events
}
