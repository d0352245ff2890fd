package history

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
	"github.com/Capitan-Parrot/clever-camera/internal/roi"
)

func startOfDay(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// MatchesLabels reports whether an event passes a comma separated label
// filter. "*" and "" match everything.
func MatchesLabels(filter string, labels []string) bool {
	f := strings.TrimSpace(filter)
	if f == "" || f == roi.MatchAll {
		return true
	}
	wanted := roi.ParseLabels(f)
	return lo.SomeBy(labels, func(l string) bool {
		return lo.Contains(wanted, strings.ToLower(strings.TrimSpace(l)))
	})
}

// Query returns the events of the days in [start, end] matching
// labelFilter, most recent day and most recent event first. Only day
// directories that exist are read, so the span of the range is not
// limited.
func (s *Store) Query(start, end time.Time, labelFilter string) ([]models.Event, error) {
	from, to := startOfDay(start), startOfDay(end)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s < %s", ErrInvalidRange, to.Format(DayLayout), from.Format(DayLayout))
	}

	days, err := s.days(from, to)
	if err != nil {
		return nil, err
	}

	var out []models.Event
	for _, day := range days {
		events, err := readDay(s.dayDir(day))
		if err != nil {
			return nil, err
		}
		for i := len(events) - 1; i >= 0; i-- {
			if MatchesLabels(labelFilter, events[i].Labels) {
				out = append(out, events[i])
			}
		}
	}
	return out, nil
}

// days lists the stored days within [from, to], latest first.
func (s *Store) days(from, to time.Time) ([]time.Time, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var days []time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.ParseInLocation(DayLayout, e.Name(), time.Local)
		if err != nil || day.Before(from) || day.After(to) {
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days, nil
}

// QueryDay returns all events of one day, most recent first.
func (s *Store) QueryDay(day time.Time) ([]models.Event, error) {
	return s.Query(day, day, roi.MatchAll)
}

// ExportName is the archive name for a date range.
func ExportName(start, end time.Time) string {
	return fmt.Sprintf("snapshots-%s-%s.zip", start.Format(DayLayout), end.Format(DayLayout))
}

// Export writes a zip archive with the full resolution image of every
// event, named by its basename. Basenames repeated across days get the day
// as a prefix. Missing files are skipped.
func (s *Store) Export(w io.Writer, events []models.Event) (int, error) {
	zw := zip.NewWriter(w)
	seen := make(map[string]bool)
	written := 0

	for _, ev := range events {
		name := filepath.Base(ev.ImagePath)
		if seen[name] {
			name = filepath.Base(filepath.Dir(ev.ImagePath)) + "_" + name
		}
		if seen[name] {
			continue
		}

		f, err := os.Open(ev.ImagePath)
		if err != nil {
			s.log.Warn().Err(err).Str("path", ev.ImagePath).Msg("Skipping missing image in export")
			continue
		}
		entry, err := zw.Create(name)
		if err == nil {
			_, err = io.Copy(entry, f)
		}
		f.Close()
		if err != nil {
			return written, fmt.Errorf("add %s to archive: %w", name, err)
		}
		seen[name] = true
		written++
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("close archive: %w", err)
	}
	return written, nil
}

// Prune removes day directories strictly older than the day of before.
func (s *Store) Prune(before time.Time) (int, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}

	cutoff := startOfDay(before)
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.ParseInLocation(DayLayout, e.Name(), time.Local)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
