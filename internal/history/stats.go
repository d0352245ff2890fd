package history

import (
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

type Summary struct {
	Total  int            `json:"total"`
	Labels map[string]int `json:"labels"`
	ROIs   map[string]int `json:"rois"`
	Hours  [24]int        `json:"hours"`
}

func Summarize(events []models.Event) Summary {
	s := Summary{Total: len(events), Labels: map[string]int{}, ROIs: map[string]int{}}
	for _, ev := range events {
		for _, l := range ev.Labels {
			s.Labels[l]++
		}
		s.ROIs[ev.ROIName]++
		s.Hours[ev.Timestamp.Local().Hour()]++
	}
	return s
}

// Filter narrows a query result. Empty fields do not filter.
type Filter struct {
	Labels []string
	ROIs   []string
	Hours  []int
}

func (f Filter) Apply(events []models.Event) []models.Event {
	return lo.Filter(events, func(ev models.Event, _ int) bool {
		if len(f.Labels) > 0 && len(lo.Intersect(f.Labels, ev.Labels)) == 0 {
			return false
		}
		if len(f.ROIs) > 0 && !lo.Contains(f.ROIs, ev.ROIName) {
			return false
		}
		if len(f.Hours) > 0 && !lo.Contains(f.Hours, ev.Timestamp.Local().Hour()) {
			return false
		}
		return true
	})
}
