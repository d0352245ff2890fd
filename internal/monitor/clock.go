package monitor

import "time"

// Clock paces the monitor loop.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until stop is closed. It reports false when
	// woken by stop.
	Sleep(stop <-chan struct{}, d time.Duration) bool
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
