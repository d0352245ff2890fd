package roi

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

const (
	compareSize    = 200
	pixelThreshold = 0.2

	// DefaultChangeThreshold is the change fraction above which a ROI is
	// classified again.
	DefaultChangeThreshold = 0.01
)

// ComputeChange downsamples both images to a fixed size, converts them to
// grayscale and returns the fraction of pixels whose intensity moved by
// more than pixelThreshold.
func ComputeChange(prev, curr image.Image) float64 {
	if prev == nil || curr == nil || prev.Bounds().Empty() || curr.Bounds().Empty() {
		return 0
	}
	a := intensities(resize.Resize(compareSize, compareSize, prev, resize.Bilinear))
	b := intensities(resize.Resize(compareSize, compareSize, curr, resize.Bilinear))

	changed := 0
	for i := range a {
		if math.Abs(a[i]-b[i]) > pixelThreshold {
			changed++
		}
	}
	return float64(changed) / float64(len(a))
}

// intensities is the per-pixel mean of R, G and B scaled to [0, 1].
func intensities(img image.Image) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, float64(r+g+bl)/3/0xffff)
		}
	}
	return out
}

type Candidate struct {
	ROI    ROI
	Change float64
}

// Detector selects the ROIs that need classification in a cycle.
type Detector struct {
	Threshold float64
}

func NewDetector() Detector {
	return Detector{Threshold: DefaultChangeThreshold}
}

// Select returns the enabled ROIs whose change exceeds the threshold.
// Without a previous frame every enabled ROI is a candidate with change 1.
func (d Detector) Select(prev, curr image.Image, rois []ROI) []Candidate {
	var out []Candidate
	for _, r := range rois {
		if !r.Enabled {
			continue
		}
		if prev == nil {
			out = append(out, Candidate{ROI: r, Change: 1})
			continue
		}
		change := r.Change(prev, curr)
		if change > d.Threshold {
			out = append(out, Candidate{ROI: r, Change: change})
		}
	}
	return out
}
