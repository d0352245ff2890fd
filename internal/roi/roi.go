// Package roi holds regions of interest and the frame-to-frame change
// detection that decides which of them are worth classifying.
package roi

import (
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/samber/lo"
)

// MatchAll is the label filter that accepts every label.
const MatchAll = "*"

// ROI is a named rectangular sub-area of a frame. Coordinates are
// percentages of the frame size.
type ROI struct {
	Name         string  `yaml:"name" json:"name"`
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	XMin         float64 `yaml:"x_min" json:"x_min"`
	YMin         float64 `yaml:"y_min" json:"y_min"`
	XMax         float64 `yaml:"x_max" json:"x_max"`
	YMax         float64 `yaml:"y_max" json:"y_max"`
	LabelsFilter string  `yaml:"labels_filter" json:"labels_filter"`
}

// Full returns an enabled ROI covering the whole frame.
func Full(name string) ROI {
	return ROI{Name: name, Enabled: true, XMax: 100, YMax: 100, LabelsFilter: MatchAll}
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func span(from, to float64, origin, size int) (int, int) {
	from, to = clampPercent(from), clampPercent(to)
	if from > to {
		from, to = to, from
	}
	return origin + int(from*float64(size)/100), origin + int(to*float64(size)/100)
}

// Box converts the percentage box into pixel coordinates inside bounds.
// Each axis is clamped to [0, 100] and min/max normalized first.
func (r ROI) Box(bounds image.Rectangle) image.Rectangle {
	x0, x1 := span(r.XMin, r.XMax, bounds.Min.X, bounds.Dx())
	y0, y1 := span(r.YMin, r.YMax, bounds.Min.Y, bounds.Dy())
	return image.Rect(x0, y0, x1, y1)
}

// Crop copies the ROI area of img into a new zero-origin image.
func (r ROI) Crop(img image.Image) image.Image {
	box := r.Box(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(dst, dst.Bounds(), img, box.Min, draw.Src)
	return dst
}

// Change is the change fraction of this ROI between two frames.
func (r ROI) Change(prev, curr image.Image) float64 {
	return ComputeChange(r.Crop(prev), r.Crop(curr))
}

// AllowsAll reports whether the filter is "*" or empty.
func (r ROI) AllowsAll() bool {
	f := strings.TrimSpace(r.LabelsFilter)
	return f == "" || f == MatchAll
}

// AllowedLabels returns the normalized allow-list, nil when every label passes.
func (r ROI) AllowedLabels() []string {
	if r.AllowsAll() {
		return nil
	}
	return ParseLabels(r.LabelsFilter)
}

// Allows reports whether a single label passes the filter.
func (r ROI) Allows(label string) bool {
	if r.AllowsAll() {
		return true
	}
	return lo.Contains(r.AllowedLabels(), normalize(label))
}

// FilterLabels keeps the labels accepted by the filter, preserving order.
func (r ROI) FilterLabels(labels []string) []string {
	if r.AllowsAll() {
		return append([]string(nil), labels...)
	}
	allowed := r.AllowedLabels()
	return lo.Filter(labels, func(l string, _ int) bool {
		return lo.Contains(allowed, normalize(l))
	})
}

// ParseLabels splits a comma separated label list into lower-case entries.
func ParseLabels(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return normalize(p)
	})
	return lo.Uniq(lo.Compact(parts))
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
